package domain

import (
	"fmt"
)

// Status はワークフローの進行状態です。
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

// String はログやテンプレート向けの名前を返すのだ。
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText は JSON 上でも名前で表現されるようにします。
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ViewMode は結果画面の表示モードなのだ。
type ViewMode string

const (
	ViewSketch     ViewMode = "sketch"
	ViewSideBySide ViewMode = "sideBySide"
)

// ParseViewMode は外部入力を ViewMode に変換します。
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ViewSketch, ViewSideBySide:
		return ViewMode(s), nil
	default:
		return "", fmt.Errorf("%w: 不明な表示モードです: %q", ErrValidation, s)
	}
}

// Toggle はもう一方の表示モードを返すのだ。
func (m ViewMode) Toggle() ViewMode {
	if m == ViewSideBySide {
		return ViewSketch
	}
	return ViewSideBySide
}

// 進捗表示用のメッセージです。見た目だけのもので、正しさには影響しません。
const (
	LoadingInitial   = "Warming up the virtual pencils..."
	LoadingPreparing = "Preparing your image..."
	LoadingSketching = "Sketching your masterpiece..."
)

// State はコントローラーが唯一所有するワークフロー状態です。
// 外部には値コピーのスナップショットとして渡されるのだ。
type State struct {
	SourceImage    DataURL  `json:"-"`
	GeneratedImage DataURL  `json:"-"`
	Status         Status   `json:"status"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	ViewMode       ViewMode `json:"view_mode"`
	OutputFileName string   `json:"output_file_name"`
	LoadingMessage string   `json:"loading_message"`
}

// InitialState は Idle の初期状態を返します。
func InitialState() State {
	return State{
		Status:         StatusIdle,
		ViewMode:       ViewSketch,
		OutputFileName: DefaultOutputFileName,
		LoadingMessage: LoadingInitial,
	}
}

// HasSource は元画像があるかどうかを返します。
func (s State) HasSource() bool { return !s.SourceImage.IsZero() }

// HasSketch は生成済みスケッチがあるかどうかを返します。
func (s State) HasSketch() bool { return !s.GeneratedImage.IsZero() }

// CanDownload はダウンロード操作が有効かどうかを返すのだ。
func (s State) CanDownload() bool {
	return s.HasSketch() && s.Status != StatusLoading
}

// Check は状態の不変条件を検査し、最初に見つかった違反を返します。
func (s State) Check() error {
	if s.HasSketch() && s.Status != StatusReady {
		return fmt.Errorf("generated image present in %s state", s.Status)
	}
	if s.Status == StatusReady && !s.HasSketch() {
		return fmt.Errorf("ready state without generated image")
	}
	if s.ErrorMessage != "" && s.Status != StatusFailed {
		return fmt.Errorf("error message present in %s state", s.Status)
	}
	if s.Status == StatusFailed && s.ErrorMessage == "" {
		return fmt.Errorf("failed state without error message")
	}
	if s.Status == StatusIdle && s.HasSource() {
		return fmt.Errorf("source image present in idle state")
	}
	if s.Status == StatusReady && !s.HasSource() {
		return fmt.Errorf("ready state without source image")
	}
	if s.ViewMode != ViewSketch && s.ViewMode != ViewSideBySide {
		return fmt.Errorf("unknown view mode %q", s.ViewMode)
	}
	return nil
}

// CheckTransition は prev から next への遷移で元画像が失われていないかを検査します。
// Loading に入るときは、直前に元画像があればそれを保ったままにするのだ。
func CheckTransition(prev, next State) error {
	if err := next.Check(); err != nil {
		return err
	}
	if next.Status == StatusLoading && prev.HasSource() && !next.HasSource() {
		return fmt.Errorf("source image dropped on %s -> %s", prev.Status, next.Status)
	}
	return nil
}

// Download はホスト環境に保存させるためのスケッチとファイル名の組なのだ。
type Download struct {
	FileName string
	Image    DataURL
}
