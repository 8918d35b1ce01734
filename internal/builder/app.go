package builder

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-photo-sketcher/internal/config"
	"github.com/shouni/go-photo-sketcher/pkg/encoder"
	"github.com/shouni/go-photo-sketcher/pkg/generator"
	"github.com/shouni/go-photo-sketcher/pkg/intake"
	"github.com/shouni/go-photo-sketcher/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各ホスト（Webサーバー、TUI）に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config    *config.Config            // Configは、環境変数とフラグから組み立てた設定です。
	Validator *intake.Validator         // Validatorは、ワークフローに入る前のファイルを検査します。
	Encoder   encoder.FileEncoder       // Encoderは、候補ファイルを data URL に変換します。
	Generator generator.SketchGenerator // Generatorは、キャッシュとレート制限付きのスケッチ生成器です。
}

// NewAppContext は AppContext の新しいインスタンスを生成する
func NewAppContext(cfg *config.Config, validator *intake.Validator, enc encoder.FileEncoder, gen generator.SketchGenerator) AppContext {
	return AppContext{
		Config:    cfg,
		Validator: validator,
		Encoder:   enc,
		Generator: gen,
	}
}

// NewController はセッションごとに独立したワークフローコントローラーを作成するのだ。
// 生成器は全セッションで共有されるので、キャッシュとレート制限も共有されます。
func (a AppContext) NewController(logger *slog.Logger) (*workflow.Controller, error) {
	ctrl, err := workflow.New(a.Encoder, a.Generator, logger)
	if err != nil {
		return nil, fmt.Errorf("コントローラーの初期化に失敗しました: %w", err)
	}
	return ctrl, nil
}
