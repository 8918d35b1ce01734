package supervisor

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
)

// Middleware はハンドラーの panic を捕まえ、fallback で回復用のページを返す HTTP ミドルウェアです。
// http.ErrAbortHandler は意図的な中断なので、そのまま再送出します。
// ハンドラーがすでに応答を書き始めていた場合は、fallback を重ねずにログだけ残すのだ。
func Middleware(logger *slog.Logger, fallback http.HandlerFunc) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			var aborted bool
			err := Guard(logger, r.Method+" "+r.URL.Path, func() error {
				defer func() {
					if rec := recover(); rec != nil {
						if e, ok := rec.(error); ok && errors.Is(e, http.ErrAbortHandler) {
							aborted = true
							return
						}
						panic(rec)
					}
				}()
				next.ServeHTTP(tw, r)
				return nil
			})
			if aborted {
				panic(http.ErrAbortHandler)
			}
			if err == nil {
				return
			}
			if tw.written {
				logger.Warn("応答の書き込み後に失敗したため回復ページは返せないのだ",
					"method", r.Method,
					"path", r.URL.Path,
				)
				return
			}
			fallback(w, r)
		})
	}
}

// trackingWriter は応答が書き始められたかどうかを記録します。
// WebSocket の Hijack と Flush は元の ResponseWriter にそのまま渡すのだ。
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.written = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(p []byte) (int, error) {
	tw.written = true
	return tw.ResponseWriter.Write(p)
}

func (tw *trackingWriter) Flush() {
	tw.written = true
	_ = http.NewResponseController(tw.ResponseWriter).Flush()
}

func (tw *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(tw.ResponseWriter).Hijack()
	if err == nil {
		tw.written = true
	}
	return conn, rw, err
}

// Unwrap は http.ResponseController から元の ResponseWriter を辿れるようにします。
func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}
