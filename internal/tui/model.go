// Package tui は1つのローカルファイルを対象にした端末ホストです。
// コントローラーのスナップショットを購読して描画し、キー操作を意図として送るのだ。
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
	"github.com/shouni/go-photo-sketcher/pkg/supervisor"
	"github.com/shouni/go-photo-sketcher/pkg/workflow"
)

// Opener は再送信のたびに候補を作り直す関数です。
type Opener func() (domain.UploadCandidate, error)

// Model は bubbletea のモデルなのだ。
type Model struct {
	ctx       context.Context
	ctrl      *workflow.Controller
	states    <-chan domain.State
	open      Opener
	outputDir string
	boundary  *supervisor.Boundary

	state    domain.State
	source   string
	notice   string
	quitting bool
}

type stateMsg domain.State

type closedMsg struct{}

type savedMsg struct {
	path string
	err  error
}

// NewModel は Model を作成します。states は ctrl.Subscribe で得たチャネルを渡すこと。
func NewModel(ctx context.Context, ctrl *workflow.Controller, states <-chan domain.State, open Opener, outputDir string, logger *slog.Logger) Model {
	return Model{
		ctx:       ctx,
		ctrl:      ctrl,
		states:    states,
		open:      open,
		outputDir: outputDir,
		boundary:  supervisor.NewBoundary(logger, renderRecovery, ctrl.Reset),
		state:     ctrl.Snapshot(),
	}
}

// SetSource は画面に表示する入力ファイル名を設定します。
func (m Model) SetSource(name string) Model {
	m.source = name
	return m
}

func (m Model) Init() tea.Cmd {
	return listenForStates(m.states)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state = domain.State(msg)
		return m, listenForStates(m.states)
	case closedMsg:
		m.quitting = true
		return m, tea.Quit
	case savedMsg:
		if msg.err != nil {
			m.notice = errorStyle.Render("保存に失敗しました: " + msg.err.Error())
		} else {
			m.notice = okStyle.Render("保存しました: " + msg.path)
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.boundary.Failed() != nil {
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter", "t":
			m.boundary.Reset()
			m.notice = ""
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "v":
		m.ctrl.SetViewMode(m.state.ViewMode.Toggle())
	case "n":
		m.ctrl.Reset()
		m.notice = ""
	case "r":
		// 生成中の再送信は受け付けないのだ
		if m.state.Status == domain.StatusLoading {
			m.notice = warnStyle.Render(domain.MsgUploadBusy)
			return m, nil
		}
		cand, err := m.open()
		if err != nil {
			m.notice = errorStyle.Render(domain.MsgUploadRejected)
			return m, nil
		}
		m.notice = ""
		m.ctrl.Submit(m.ctx, cand)
	case "d":
		return m, saveSketch(m.ctrl, m.outputDir)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.boundary.Render("tui", func() (string, error) {
		return m.render(), nil
	})
}

func (m Model) render() string {
	lines := []string{titleStyle.Render("photo-sketcher ✏️")}
	if m.source != "" {
		lines = append(lines, dimStyle.Render("input: "+m.source))
	}
	lines = append(lines, "")

	switch m.state.Status {
	case domain.StatusIdle:
		lines = append(lines, labelStyle.Render("No sketch yet."), dimStyle.Render("r: sketch the photo"))
	case domain.StatusLoading:
		lines = append(lines, warnStyle.Render(m.state.LoadingMessage))
	case domain.StatusFailed:
		lines = append(lines, errorStyle.Render(m.state.ErrorMessage))
	case domain.StatusReady:
		lines = append(lines, m.renderResult())
	}

	if m.notice != "" {
		lines = append(lines, "", m.notice)
	}
	lines = append(lines, "", dimStyle.Render(m.help()))
	return strings.Join(lines, "\n")
}

func (m Model) renderResult() string {
	sketch := activeBorder.Render(describeImage("Sketch", m.state.OutputFileName, m.state.GeneratedImage))
	if m.state.ViewMode != domain.ViewSideBySide {
		return sketch
	}
	source := panelStyle.Render(describeImage("Original", m.source, m.state.SourceImage))
	return lipgloss.JoinHorizontal(lipgloss.Top, source, " ", sketch)
}

func (m Model) help() string {
	keys := []string{"r: resubmit", "n: reset"}
	if m.state.Status == domain.StatusReady {
		keys = append(keys, "v: "+string(m.state.ViewMode.Toggle()))
	}
	if m.state.CanDownload() {
		keys = append(keys, "d: save "+m.state.OutputFileName)
	}
	keys = append(keys, "q: quit")
	return strings.Join(keys, "  ")
}

func describeImage(title, name string, img domain.DataURL) string {
	size := len(img.Payload()) * 3 / 4
	return strings.Join([]string{
		labelStyle.Bold(true).Render(title),
		labelStyle.Render(name),
		dimStyle.Render(fmt.Sprintf("%s  ~%d KB", img.MIMEType(), size/1024)),
	}, "\n")
}

func renderRecovery(err error) string {
	return strings.Join([]string{
		errorStyle.Render(domain.MsgRenderFailed),
		"",
		dimStyle.Render("enter: try again  q: quit"),
	}, "\n")
}

func listenForStates(states <-chan domain.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-states
		if !ok {
			return closedMsg{}
		}
		return stateMsg(st)
	}
}

// saveSketch はスケッチを outputDir に書き出すコマンドを返します。
// ダウンロードできない状態では何もしないのだ。
func saveSketch(ctrl *workflow.Controller, outputDir string) tea.Cmd {
	dl, ok := ctrl.Download()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		data, err := dl.Image.Bytes()
		if err != nil {
			return savedMsg{err: err}
		}
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return savedMsg{err: fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)}
		}
		path := filepath.Join(outputDir, dl.FileName)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return savedMsg{err: fmt.Errorf("ファイルの書き込みに失敗しました: %w", err)}
		}
		return savedMsg{path: path}
	}
}
