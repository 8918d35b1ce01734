package generator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/go-photo-sketcher/pkg/domain"

	"github.com/patrickmn/go-cache"
)

type countingGenerator struct {
	calls   atomic.Int32
	result  domain.DataURL
	err     error
	block   bool
	release chan struct{}
}

func (g *countingGenerator) Generate(ctx context.Context, payload string, mimeType string) (domain.DataURL, error) {
	g.calls.Add(1)
	if g.release != nil {
		<-g.release
	}
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.result, g.err
}

func TestComposer_Generate(t *testing.T) {
	ctx := context.Background()
	sketch := domain.NewDataURL("image/png", []byte("sketch"))

	t.Run("成功結果はキャッシュされるのだ", func(t *testing.T) {
		gen := &countingGenerator{result: sketch}
		c, err := NewComposer(gen, cache.New(time.Minute, time.Minute), time.Minute, nil, 0)
		if err != nil {
			t.Fatalf("初期化失敗なのだ: %v", err)
		}

		for i := 0; i < 3; i++ {
			got, err := c.Generate(ctx, "AAAA", "image/png")
			if err != nil {
				t.Fatalf("Generate失敗なのだ: %v", err)
			}
			if got != sketch {
				t.Errorf("結果が違うのだ: %s", got)
			}
		}
		if n := gen.calls.Load(); n != 1 {
			t.Errorf("下位の生成器は1回だけ呼ばれるべきなのだ: %d", n)
		}

		if _, err := c.Generate(ctx, "AAAA", "image/jpeg"); err != nil {
			t.Fatalf("Generate失敗なのだ: %v", err)
		}
		if n := gen.calls.Load(); n != 2 {
			t.Errorf("MIMEタイプが違えば別のキーになるのだ: %d", n)
		}
	})

	t.Run("失敗はキャッシュされないのだ", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		gen := &countingGenerator{err: boom}
		c, _ := NewComposer(gen, nil, 0, nil, 0)

		for i := 0; i < 2; i++ {
			if _, err := c.Generate(ctx, "BBBB", "image/png"); !errors.Is(err, boom) {
				t.Fatalf("元のエラーが返るべきなのだ: %v", err)
			}
		}
		if n := gen.calls.Load(); n != 2 {
			t.Errorf("失敗後は再度呼ばれるべきなのだ: %d", n)
		}
	})

	t.Run("タイムアウトで呼び出しを打ち切るのだ", func(t *testing.T) {
		gen := &countingGenerator{block: true}
		c, _ := NewComposer(gen, nil, 0, nil, 10*time.Millisecond)

		_, err := c.Generate(ctx, "CCCC", "image/png")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("DeadlineExceeded であるべきなのだ: %v", err)
		}
	})

	t.Run("同時の同一リクエストは1回の呼び出しにまとめるのだ", func(t *testing.T) {
		gen := &countingGenerator{result: sketch, release: make(chan struct{})}
		c, _ := NewComposer(gen, nil, time.Minute, nil, 0)

		results := generateConcurrently(t, c, gen, 5, "DDDD")
		for _, r := range results {
			if r.err != nil || r.img != sketch {
				t.Errorf("全員が同じ結果を受け取るべきなのだ: %+v", r)
			}
		}
		if n := gen.calls.Load(); n != 1 {
			t.Errorf("下位の生成器は1回だけ呼ばれるべきなのだ: %d", n)
		}
	})

	t.Run("共有された失敗もキャッシュされないのだ", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		gen := &countingGenerator{err: boom, release: make(chan struct{})}
		c, _ := NewComposer(gen, nil, time.Minute, nil, 0)

		results := generateConcurrently(t, c, gen, 5, "EEEE")
		for _, r := range results {
			if !errors.Is(r.err, boom) {
				t.Errorf("待機していた全員に同じエラーが返るべきなのだ: %v", r.err)
			}
		}
		if n := gen.calls.Load(); n != 1 {
			t.Errorf("失敗も1回の呼び出しで共有されるのだ: %d", n)
		}

		if _, err := c.Generate(ctx, "EEEE", "image/png"); !errors.Is(err, boom) {
			t.Fatalf("元のエラーが返るべきなのだ: %v", err)
		}
		if n := gen.calls.Load(); n != 2 {
			t.Errorf("失敗後の呼び出しは再び下位に届くのだ: %d", n)
		}
	})

	t.Run("generator が nil ならエラーなのだ", func(t *testing.T) {
		if _, err := NewComposer(nil, nil, 0, nil, 0); err == nil {
			t.Error("エラーになるべきなのだ")
		}
	})
}

type generateResult struct {
	img domain.DataURL
	err error
}

// generateConcurrently は n 個のゴルーチンから同じ入力で Generate を呼び、
// 最初の呼び出しが下位に届いて他が合流するのを待ってから結果を解放するのだ。
func generateConcurrently(t *testing.T, c *Composer, gen *countingGenerator, n int, payload string) []generateResult {
	t.Helper()
	results := make([]generateResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			img, err := c.Generate(context.Background(), payload, "image/png")
			results[i] = generateResult{img: img, err: err}
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for gen.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("下位の生成器が呼ばれなかったのだ")
		}
		time.Sleep(time.Millisecond)
	}
	// 残りのゴルーチンが singleflight に合流するまで少し待つ
	time.Sleep(50 * time.Millisecond)
	close(gen.release)
	wg.Wait()
	return results
}
