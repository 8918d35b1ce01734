// Package server はブラウザ向けのWebホストです。
// ブラウザのセッションごとにワークフローコントローラーを持ち、画面描画と状態配信を行います。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shouni/go-photo-sketcher/internal/builder"
	"github.com/shouni/go-photo-sketcher/internal/config"
	"github.com/shouni/go-photo-sketcher/pkg/supervisor"
	"github.com/shouni/go-photo-sketcher/pkg/workflow"

	"golang.org/x/sync/errgroup"
)

const (
	pageTitle         = "Photo Sketcher"
	readHeaderTimeout = 10 * time.Second
)

// Server はルーティング、セッション、テンプレートをまとめたWebホストなのだ。
type Server struct {
	app       builder.AppContext
	sessions  *SessionStore
	templates *templateSet
	logger    *slog.Logger
	handler   http.Handler

	// baseCtx はバックグラウンドの生成処理に渡すコンテキストです。
	// リクエストのコンテキストはレスポンスを返した時点でキャンセルされるため使えません。
	baseCtx context.Context
}

// New は依存関係を検証して Server を作成します。
func New(app builder.AppContext, logger *slog.Logger) (*Server, error) {
	if app.Config == nil {
		return nil, fmt.Errorf("Config は必須です")
	}
	if app.Validator == nil {
		return nil, fmt.Errorf("Validator は必須です")
	}
	if logger == nil {
		logger = slog.Default()
	}

	templates, err := newTemplateSet()
	if err != nil {
		return nil, err
	}

	ttl := app.Config.SessionTTL
	if ttl <= 0 {
		ttl = config.DefaultSessionTTL
	}

	s := &Server{
		app:       app,
		templates: templates,
		logger:    logger.With("system", "http"),
		baseCtx:   context.Background(),
	}
	s.sessions = NewSessionStore(ttl, func() (*workflow.Controller, error) {
		return app.NewController(logger.With("system", "workflow"))
	})
	s.handler = s.routes()
	return s, nil
}

// Handler はミドルウェア適用済みのハンドラーを返します。
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions はセッションストアを返します。
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /view", s.handleView)
	mux.HandleFunc("GET /download", s.handleDownload)
	mux.HandleFunc("GET /image/{kind}", s.handleImage)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var h http.Handler = mux
	h = supervisor.Middleware(s.logger, s.handleRecovery)(h)
	h = requestLogger(s.logger)(h)
	return h
}

// Run はサーバーを起動し、ctx がキャンセルされるとグレースフルに停止するのだ。
func (s *Server) Run(ctx context.Context, addr string) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info("サーバーを起動します", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバーの起動に失敗しました: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバーの停止に失敗しました: %w", err)
		}
		s.logger.Info("サーバーを停止しました")
		return nil
	})
	return eg.Wait()
}
