package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/shouni/go-photo-sketcher/internal/builder"
	"github.com/shouni/go-photo-sketcher/internal/server"

	"github.com/spf13/cobra"
)

// serveCmd はブラウザ向けのWebサーバーを起動するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Webサーバーを起動しますなのだ。",
	Long: `ブラウザから写真をアップロードして鉛筆スケッチに変換するWebサーバーを起動するのだ。
セッションごとに独立した状態を持ち、生成の進捗は WebSocket で画面に届くのだよ。`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&opts.ListenAddr, "addr", "", "待ち受けアドレスなのだ (例: :8080)。")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	appCtx, err := builder.BuildAppContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}

	srv, err := server.New(*appCtx, slog.Default())
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗したのだ: %w", err)
	}

	slog.Info("Webサーバーを起動するのだ！",
		"addr", cfg.ListenAddr,
		"image_model", cfg.ImageModel,
		"session_ttl", cfg.SessionTTL)

	return srv.Run(ctx, cfg.ListenAddr)
}
