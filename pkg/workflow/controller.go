// Package workflow は、アップロードから生成、表示までの状態遷移を所有するコントローラーを提供します。
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
	"github.com/shouni/go-photo-sketcher/pkg/encoder"
	"github.com/shouni/go-photo-sketcher/pkg/generator"
)

// Controller は WorkflowState の唯一の書き手なのだ。
// 各 Submit にはシーケンストークンが振られ、最新のトークンを持つ処理だけが状態を書き換えられます。
type Controller struct {
	encoder   encoder.FileEncoder
	generator generator.SketchGenerator
	logger    *slog.Logger

	mu      sync.Mutex
	state   domain.State
	seq     uint64
	subs    map[int]chan domain.State
	nextSub int
}

// New は依存関係を検証して Idle 状態の Controller を作成します。
func New(enc encoder.FileEncoder, gen generator.SketchGenerator, logger *slog.Logger) (*Controller, error) {
	if enc == nil {
		return nil, fmt.Errorf("FileEncoder は必須です")
	}
	if gen == nil {
		return nil, fmt.Errorf("SketchGenerator は必須です")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		encoder:   enc,
		generator: gen,
		logger:    logger,
		state:     domain.InitialState(),
		subs:      make(map[int]chan domain.State),
	}, nil
}

// Snapshot は現在の状態のコピーを返します。
func (c *Controller) Snapshot() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit は検証済みの候補でワークフローを開始するのだ。
// 戻る前に状態は Loading になっており、返されるチャネルはこの Submit が解決
// (反映または破棄) したときに閉じられます。
func (c *Controller) Submit(ctx context.Context, cand domain.UploadCandidate) <-chan struct{} {
	c.mu.Lock()
	c.seq++
	token := c.seq
	c.state.Status = domain.StatusLoading
	c.state.GeneratedImage = ""
	c.state.ErrorMessage = ""
	c.state.OutputFileName = domain.OutputFileName(cand.Name)
	c.state.LoadingMessage = domain.LoadingPreparing
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Info("スケッチ生成を開始するのだ", "token", token, "file", cand.Name, "mime_type", cand.MIMEType, "bytes", cand.SizeBytes)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(ctx, token, cand)
	}()
	return done
}

// run は1回の Submit の中でエンコードと生成を順番に実行します。重なりはありません。
func (c *Controller) run(ctx context.Context, token uint64, cand domain.UploadCandidate) {
	src, err := c.encoder.Encode(ctx, cand)
	if err != nil {
		if !errors.Is(err, domain.ErrEncoding) {
			err = fmt.Errorf("%w: %w", domain.ErrEncoding, err)
		}
		c.fail(token, err)
		return
	}

	applied := c.apply(token, func(s *domain.State) {
		s.SourceImage = src
		s.LoadingMessage = domain.LoadingSketching
	})
	if !applied {
		// 新しい Submit か Reset に追い越されたので、生成は開始しないのだ
		return
	}

	sketch, err := c.generator.Generate(ctx, src.Payload(), src.MIMEType())
	if err == nil {
		// 生成器の実装によらず、壊れた data URL は状態に入れないのだ
		sketch, err = domain.ParseDataURL(string(sketch))
	}
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		c.fail(token, err)
		return
	}

	if c.apply(token, func(s *domain.State) {
		s.GeneratedImage = sketch
		s.Status = domain.StatusReady
	}) {
		c.logger.Info("スケッチ生成が完了したのだ", "token", token, "file", cand.Name)
	}
}

// fail は固定のメッセージで Failed に遷移させ、内部エラーは運用ログにだけ出すのだ。
func (c *Controller) fail(token uint64, err error) {
	if c.apply(token, func(s *domain.State) {
		s.Status = domain.StatusFailed
		s.GeneratedImage = ""
		s.ErrorMessage = domain.MsgGenerationFailed
	}) {
		c.logger.Error("スケッチ生成に失敗したのだ", "token", token, "error", err)
	}
}

// apply はトークンが最新の場合にだけ状態を更新し、更新したかどうかを返します。
// 古いトークンの結果は黙って破棄されます。
func (c *Controller) apply(token uint64, mutate func(s *domain.State)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.seq {
		c.logger.Debug("古い処理の結果を破棄したのだ", "token", token, "latest", c.seq)
		return false
	}
	mutate(&c.state)
	c.notifyLocked()
	return true
}

// Reset は Idle の初期状態に戻します。
// 進行中の処理が後から状態を書き換えないよう、トークンも進めるのだ。
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.state = domain.InitialState()
	c.notifyLocked()
}

// SetViewMode は表示モードだけを更新する純粋な状態更新です。どの状態からでも呼べます。
func (c *Controller) SetViewMode(mode domain.ViewMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.ViewMode == mode {
		return
	}
	c.state.ViewMode = mode
	c.notifyLocked()
}

// Download は生成済みスケッチと保存ファイル名を返します。
// スケッチがない場合や Loading 中は何もせず false を返すのだ。
func (c *Controller) Download() (domain.Download, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CanDownload() {
		return domain.Download{}, false
	}
	return domain.Download{
		FileName: c.state.OutputFileName,
		Image:    c.state.GeneratedImage,
	}, true
}
