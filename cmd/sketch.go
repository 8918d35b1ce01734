package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shouni/go-photo-sketcher/internal/builder"
	"github.com/shouni/go-photo-sketcher/internal/tui"
	"github.com/shouni/go-photo-sketcher/pkg/domain"
	"github.com/shouni/go-photo-sketcher/pkg/intake"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const debugLogFile = "photo-sketcher-debug.log"

// sketchCmd はローカルの写真1枚を端末上でスケッチに変換するのだ。
var sketchCmd = &cobra.Command{
	Use:   "sketch <file>",
	Short: "ローカルの写真をスケッチに変換しますなのだ。",
	Long: `指定した PNG / JPEG / WEBP の写真を鉛筆スケッチに変換し、端末に結果を表示するのだ。
d キーで出力ディレクトリに保存、v キーで表示切り替え、r キーで再生成できるのだよ。`,
	Args: cobra.ExactArgs(1),
	RunE: sketchCommand,
}

func sketchCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	// 受付チェックは TUI を起動する前に済ませるのだ
	open := func() (domain.UploadCandidate, error) {
		return intake.OpenFile(path)
	}
	cand, err := open()
	if err != nil {
		return fmt.Errorf("%s: %w", domain.MsgUploadRejected, err)
	}

	cfg := loadConfig()
	appCtx, err := builder.BuildAppContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}

	logger, closeLog, err := tuiLogger(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer closeLog()

	ctrl, err := appCtx.NewController(logger)
	if err != nil {
		return err
	}
	states, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	ctrl.Submit(ctx, cand)

	model := tui.NewModel(ctx, ctrl, states, open, cfg.OutputDir, logger).SetSource(path)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("TUI の実行中にエラーが発生したのだ: %w", err)
	}

	final := ctrl.Snapshot()
	logger.Debug("スケッチを終了するのだ", "status", final.Status)
	if final.Status == domain.StatusFailed {
		fmt.Fprintln(os.Stderr, final.ErrorMessage)
	}
	return nil
}

// tuiLogger は TUI の描画を乱さないロガーを返します。
// --verbose のときは出力ディレクトリのログファイルに書き、それ以外は捨てるのだ。
func tuiLogger(outputDir string) (*slog.Logger, func(), error) {
	if !opts.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(outputDir, debugLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("ログファイルを開けませんでした: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}
