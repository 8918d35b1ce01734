package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-photo-sketcher/internal/config"
	"github.com/shouni/go-photo-sketcher/pkg/encoder"
	"github.com/shouni/go-photo-sketcher/pkg/generator"
	"github.com/shouni/go-photo-sketcher/pkg/intake"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const cacheCleanupInterval = time.Hour

// BuildAppContext は設定から Gemini クライアントと生成パイプラインを組み立てるのだ。
func BuildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	aiClient, err := InitializeAIClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	gen, err := InitializeSketchGenerator(cfg, aiClient.Models)
	if err != nil {
		return nil, err
	}

	appCtx := NewAppContext(cfg, intake.NewValidator(), encoder.NewDataURLEncoder(intake.MaxFileSize), gen)
	return &appCtx, nil
}

// InitializeAIClient は Gemini API クライアントを初期化します。
func InitializeAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY が設定されていません")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// InitializeSketchGenerator は Gemini 生成器をキャッシュ・レート制限付きの Composer で包んで返します。
func InitializeSketchGenerator(cfg *config.Config, client generator.ContentGenerator) (generator.SketchGenerator, error) {
	pb := generator.NewPromptBuilder("", cfg.StyleSuffix)
	gemini, err := generator.NewGeminiGenerator(client, cfg.ImageModel, pb, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("GeminiGeneratorの初期化に失敗したのだ: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateInterval), config.DefaultRateBurst)
	}
	imgCache := cache.New(cfg.CacheExpiration, cacheCleanupInterval)

	composer, err := generator.NewComposer(gemini, imgCache, cfg.CacheExpiration, limiter, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("Composerの初期化に失敗したのだ: %w", err)
	}
	return composer, nil
}
