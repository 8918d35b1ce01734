package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/go-photo-sketcher/internal/config"

	"github.com/spf13/cobra"
)

// opts は各コマンドのフラグの値を受け取るのだ。
var opts config.GenerateOptions

var rootCmd = &cobra.Command{
	Use:               "photo-sketcher",
	Short:             "写真を鉛筆スケッチに変換するのだ ✏️",
	Long:              "photo-sketcher は Gemini の画像モデルを使って、写真を鉛筆スケッチ風の画像に変換します。",
	PersistentPreRunE: preRunAppE,
	SilenceUsage:      true,
}

// Execute は main.go から呼び出されるエントリポイントなのだ。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	addAppFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, sketchCmd)
}

// addAppFlags は全コマンド共通のフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", "", "使用する Gemini 画像モデル名なのだ (既定: "+config.DefaultImageModel+")。")
	rootCmd.PersistentFlags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "スケッチを保存するディレクトリなのだ (既定: "+config.DefaultOutputDir+")。")
	rootCmd.PersistentFlags().DurationVar(&opts.RequestTimeout, "timeout", 0, "1回の生成リクエストのタイムアウトなのだ (既定: "+config.DefaultRequestTimeout.String()+")。")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "デバッグログを出力するのだ。")
}

// preRunAppE は、コマンド実行前にログレベルと必須の環境変数を確認するのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}
	return nil
}

// loadConfig は環境変数の設定にフラグの値を重ねて返します。
func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.Apply(opts)
	return cfg
}
