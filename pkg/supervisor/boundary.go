// Package supervisor は描画処理を囲む境界を提供します。
// 描画中の panic やエラーを捕まえてログに残し、回復用の表示と操作に切り替えるのだ。
package supervisor

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
)

// Guard は fn を実行し、panic と返されたエラーを domain.ErrRender でラップして返します。
func Guard(logger *slog.Logger, scope string, fn func() error) (err error) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", domain.ErrRender, scope, r)
			logger.Error("描画中に想定外のエラーが発生したのだ",
				"scope", scope,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if ferr := fn(); ferr != nil {
		logger.Error("描画に失敗したのだ", "scope", scope, "error", ferr)
		return fmt.Errorf("%w: %s: %w", domain.ErrRender, scope, ferr)
	}
	return nil
}

// Boundary は一度失敗すると回復操作が行われるまで回復用の表示を返し続けます。
type Boundary struct {
	logger   *slog.Logger
	fallback func(err error) string
	onReset  func()

	mu  sync.Mutex
	err error
}

// NewBoundary は Boundary を作成します。onReset は回復操作のときに呼ばれるのだ (nil 可)。
func NewBoundary(logger *slog.Logger, fallback func(err error) string, onReset func()) *Boundary {
	if fallback == nil {
		fallback = func(error) string { return domain.MsgRenderFailed }
	}
	return &Boundary{
		logger:   logger,
		fallback: fallback,
		onReset:  onReset,
	}
}

// Render は render を境界の中で実行し、失敗していれば回復用の表示を返します。
func (b *Boundary) Render(scope string, render func() (string, error)) string {
	b.mu.Lock()
	failed := b.err
	b.mu.Unlock()
	if failed != nil {
		return b.fallback(failed)
	}

	var out string
	err := Guard(b.logger, scope, func() error {
		var rerr error
		out, rerr = render()
		return rerr
	})
	if err != nil {
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		return b.fallback(err)
	}
	return out
}

// Failed は捕捉したエラーを返します。
func (b *Boundary) Failed() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Reset はエラー状態を解除し、回復操作を実行するのだ。
func (b *Boundary) Reset() {
	b.mu.Lock()
	b.err = nil
	b.mu.Unlock()
	if b.onReset != nil {
		b.onReset()
	}
}
