package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-photo-sketcher/pkg/domain"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultCacheExpiration = 30 * time.Minute
	CacheCleanupInterval   = time.Hour
)

// Composer は SketchGenerator をキャッシュ・重複排除・レート制限・タイムアウトで包むデコレーターです。
// 失敗した結果はキャッシュしません。
type Composer struct {
	generator SketchGenerator
	cache     *cache.Cache
	ttl       time.Duration
	limiter   *rate.Limiter
	timeout   time.Duration
	flight    singleflight.Group
}

// NewComposer は Composer の新しいインスタンスを初期化済みの状態で生成します。
// limiter が nil ならレート制限なし、timeout が 0 ならタイムアウトなしなのだ。
func NewComposer(gen SketchGenerator, c *cache.Cache, ttl time.Duration, limiter *rate.Limiter, timeout time.Duration) (*Composer, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator は必須です")
	}
	if c == nil {
		c = cache.New(DefaultCacheExpiration, CacheCleanupInterval)
	}
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	return &Composer{
		generator: gen,
		cache:     c,
		ttl:       ttl,
		limiter:   limiter,
		timeout:   timeout,
	}, nil
}

// Generate はキャッシュを確認し、なければ同一リクエストをまとめて1回だけ下位の生成器を呼び出すのだ。
func (c *Composer) Generate(ctx context.Context, payload string, mimeType string) (domain.DataURL, error) {
	key := cacheKey(mimeType, payload)
	if d, ok := c.cached(key); ok {
		slog.DebugContext(ctx, "スケッチのキャッシュにヒットしたのだ", "key", key[:12])
		return d, nil
	}

	val, err, shared := c.flight.Do(key, func() (interface{}, error) {
		// singleflight で待機中に他のゴルーチンが生成を終えている可能性があるため再確認
		if d, ok := c.cached(key); ok {
			return d, nil
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: レートリミッター待機中にエラーが発生しました: %w", domain.ErrGeneration, err)
			}
		}

		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		d, err := c.generator.Generate(callCtx, payload, mimeType)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, d, c.ttl)
		return d, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		slog.DebugContext(ctx, "同一リクエストの生成結果を共有したのだ", "key", key[:12])
	}

	d, ok := val.(domain.DataURL)
	if !ok {
		return "", fmt.Errorf("%w: unexpected return type from singleflight: %T", domain.ErrGeneration, val)
	}
	return d, nil
}

func (c *Composer) cached(key string) (domain.DataURL, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	d, ok := v.(domain.DataURL)
	return d, ok
}

// cacheKey は MIME タイプとペイロードから決定論的なキーを作るのだ。
func cacheKey(mimeType, payload string) string {
	h := sha256.New()
	h.Write([]byte(mimeType))
	h.Write([]byte{0})
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
