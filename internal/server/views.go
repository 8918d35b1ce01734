package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	layoutTemplate   = "layout"
	indexTemplate    = "index.html"
	recoveryTemplate = "recovery.html"
)

// stateView はテンプレート、/state、/events に共通で渡す状態の表現です。
// 画像そのものは含めず、/image/{kind} から取得させるのだ。
type stateView struct {
	Status         domain.Status   `json:"status"`
	LoadingMessage string          `json:"loading_message"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ViewMode       domain.ViewMode `json:"view_mode"`
	OutputFileName string          `json:"output_file_name"`
	HasSource      bool            `json:"has_source"`
	HasSketch      bool            `json:"has_sketch"`
	CanDownload    bool            `json:"can_download"`
}

func newStateView(s domain.State) stateView {
	return stateView{
		Status:         s.Status,
		LoadingMessage: s.LoadingMessage,
		ErrorMessage:   s.ErrorMessage,
		ViewMode:       s.ViewMode,
		OutputFileName: s.OutputFileName,
		HasSource:      s.HasSource(),
		HasSketch:      s.HasSketch(),
		CanDownload:    s.CanDownload(),
	}
}

// テンプレートから状態を判定するための補助メソッドなのだ。
func (v stateView) IsIdle() bool       { return v.Status == domain.StatusIdle }
func (v stateView) IsLoading() bool    { return v.Status == domain.StatusLoading }
func (v stateView) IsReady() bool      { return v.Status == domain.StatusReady }
func (v stateView) IsFailed() bool     { return v.Status == domain.StatusFailed }
func (v stateView) IsSideBySide() bool { return v.ViewMode == domain.ViewSideBySide }

// pageData はページテンプレートに渡すデータです。
type pageData struct {
	Title  string
	State  stateView
	Notice string
}

// templateSet は起動時に一度だけ解析したテンプレートを保持します。
type templateSet struct {
	views map[string]*template.Template
}

func newTemplateSet() (*templateSet, error) {
	layout, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("レイアウトの解析に失敗しました: %w", err)
	}

	views := make(map[string]*template.Template, 2)
	for _, name := range []string{indexTemplate, recoveryTemplate} {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("レイアウトの複製に失敗しました (%s): %w", name, err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("テンプレートの解析に失敗しました (%s): %w", name, err)
		}
		views[name] = t
	}
	return &templateSet{views: views}, nil
}

// render はテンプレートをバッファに描画します。
// 途中で失敗しても書きかけの HTML がクライアントに届かないようにするためなのだ。
func (ts *templateSet) render(name string, data pageData) ([]byte, error) {
	t, ok := ts.views[name]
	if !ok {
		return nil, fmt.Errorf("テンプレートが見つかりません: %s", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layoutTemplate, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
