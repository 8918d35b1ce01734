package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/shouni/go-photo-sketcher/pkg/domain"

	imagedom "github.com/shouni/gemini-image-kit/ports"
	"google.golang.org/genai"
)

// responseModalities は画像を返させるための応答形式の指定なのだ。
var responseModalities = []string{"TEXT", "IMAGE"}

// GeminiGenerator は Gemini の画像モデルを使って写真をスケッチに変換します。
type GeminiGenerator struct {
	client  ContentGenerator
	model   string
	prompts *PromptBuilder
	seed    *int32
}

// NewGeminiGenerator は依存関係を検証して GeminiGenerator を作成します。
func NewGeminiGenerator(client ContentGenerator, model string, prompts *PromptBuilder, seed *int32) (*GeminiGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("client は必須です")
	}
	if model == "" {
		return nil, fmt.Errorf("model は必須です")
	}
	if prompts == nil {
		prompts = NewPromptBuilder("", DefaultStyleSuffix)
	}
	return &GeminiGenerator{
		client:  client,
		model:   model,
		prompts: prompts,
		seed:    seed,
	}, nil
}

var (
	_ SketchGenerator = (*GeminiGenerator)(nil)
	_ ImageGenerator  = (*GeminiGenerator)(nil)
)

// Generate はペイロードをデコードしてモデルに渡し、生成されたスケッチを data URL で返すのだ。
func (g *GeminiGenerator) Generate(ctx context.Context, payload string, mimeType string) (domain.DataURL, error) {
	return sketchFromImage(ctx, g, payload, mimeType)
}

// sketchFromImage は data URL のペイロードを ImageGenerator に渡し、結果を data URL に戻します。
func sketchFromImage(ctx context.Context, images ImageGenerator, payload string, mimeType string) (domain.DataURL, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: ペイロードのデコードに失敗しました: %w", domain.ErrGeneration, err)
	}

	resp, err := images.GenerateImage(ctx, data, mimeType)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: 生成画像が空です", domain.ErrGeneration)
	}
	return domain.NewDataURL(resp.MimeType, resp.Data), nil
}

// GenerateImage は画像パートと指示テキストを1回のリクエストで送信します。
func (g *GeminiGenerator) GenerateImage(ctx context.Context, data []byte, mimeType string) (*imagedom.ImageResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 入力画像が空です", domain.ErrGeneration)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(g.prompts.Build()),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: responseModalities,
		Seed:               g.seed,
	}

	slog.DebugContext(ctx, "Gemini にスケッチ生成を依頼するのだ", "model", g.model, "mime_type", mimeType, "bytes", len(data))

	resp, err := g.client.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: Gemini API の呼び出しに失敗しました: %w", domain.ErrGeneration, err)
	}

	img, err := firstInlineImage(resp)
	if err != nil {
		return nil, err
	}
	if g.seed != nil {
		img.UsedSeed = int64(*g.seed)
	}
	return img, nil
}

// firstInlineImage は最初の候補から最初のインライン画像を取り出します。
func firstInlineImage(resp *genai.GenerateContentResponse) (*imagedom.ImageResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: 候補が返されませんでした", domain.ErrGeneration)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return nil, fmt.Errorf("%w: 候補にコンテンツがありません (finish_reason=%s)", domain.ErrGeneration, cand.FinishReason)
	}
	for _, part := range cand.Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mt := part.InlineData.MIMEType
		if mt == "" {
			mt = "image/png"
		}
		return &imagedom.ImageResponse{
			Data:     part.InlineData.Data,
			MimeType: mt,
		}, nil
	}
	return nil, fmt.Errorf("%w: 応答に画像が含まれていません", domain.ErrGeneration)
}
