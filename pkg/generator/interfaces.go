package generator

import (
	"context"

	"github.com/shouni/go-photo-sketcher/pkg/domain"

	imagedom "github.com/shouni/gemini-image-kit/ports"
	"google.golang.org/genai"
)

// SketchGenerator は、プレフィックスを除いた画像ペイロードと MIME タイプから、
// 鉛筆スケッチ画像を data URL として生成する契約です。
// リトライやストリーミングは持たず、失敗はすべて1つのエラーとして返します。
type SketchGenerator interface {
	Generate(ctx context.Context, payload string, mimeType string) (domain.DataURL, error)
}

// ImageGenerator は生のバイト列を受け取り、生成画像をそのまま返す下位の契約なのだ。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, data []byte, mimeType string) (*imagedom.ImageResponse, error)
}

// ContentGenerator は Gemini API のコンテンツ生成呼び出しを抽象化します。
// *genai.Models がこのインターフェースを満たします。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}
