package generator

import (
	"strings"
)

// DefaultSketchPrompt は写真を鉛筆スケッチに変換させるための基本指示です。
const DefaultSketchPrompt = "Transform this photograph into a beautiful hand-drawn pencil sketch. " +
	"Keep the original composition, subject and proportions. " +
	"Use expressive graphite strokes, cross-hatching for shadows and clean contour lines on white paper. " +
	"Output only the image."

// DefaultStyleSuffix は画風を補強するサフィックスなのだ。
const DefaultStyleSuffix = "monochrome graphite pencil, fine paper texture, soft shading, high detail, no color, no text, no watermark"

// PromptBuilder はスケッチ生成用のプロンプトを構築します。
type PromptBuilder struct {
	base   string
	suffix string
}

// NewPromptBuilder は新しい PromptBuilder を生成します。空文字なら既定値を使うのだ。
func NewPromptBuilder(base, suffix string) *PromptBuilder {
	if strings.TrimSpace(base) == "" {
		base = DefaultSketchPrompt
	}
	return &PromptBuilder{
		base:   base,
		suffix: strings.TrimSpace(suffix),
	}
}

// Build は基本指示とスタイル指定を結合したプロンプトを返します。
func (pb *PromptBuilder) Build() string {
	if pb.suffix == "" {
		return pb.base
	}
	return pb.base + " Style: " + pb.suffix + "."
}
