// Package intake は、ファイルがワークフローに入る前の受付チェックを担当します。
package intake

import (
	"fmt"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
)

// MaxFileSize は受け付ける最大ファイルサイズ (10MiB) なのだ。
const MaxFileSize int64 = 10 * 1024 * 1024

// AllowedTypes は受け付ける MIME タイプの一覧です。
var AllowedTypes = []string{"image/png", "image/jpeg", "image/webp"}

// Validator は候補ファイルの種類とサイズを検査します。状態は一切変更しません。
type Validator struct {
	allowed []string
	maxSize int64
}

// NewValidator は既定の許可リストと上限サイズで Validator を作成するのだ。
func NewValidator() *Validator {
	return &Validator{
		allowed: slices.Clone(AllowedTypes),
		maxSize: MaxFileSize,
	}
}

// Validate は候補を受け付けるかどうかを判定します。
// 拒否した場合は domain.ErrValidation をラップしたエラーを返すので、呼び出し側は Submit を呼んではいけません。
func (v *Validator) Validate(c domain.UploadCandidate) error {
	mt := ResolveMIMEType(c.Name, c.MIMEType)
	if !slices.Contains(v.allowed, mt) {
		return fmt.Errorf("%w: 対応していないファイル形式です: %q", domain.ErrValidation, mt)
	}
	if c.SizeBytes < 0 {
		return fmt.Errorf("%w: ファイルサイズが不正です: %d", domain.ErrValidation, c.SizeBytes)
	}
	if c.SizeBytes > v.maxSize {
		return fmt.Errorf("%w: ファイルサイズが上限を超えています: %d > %d bytes", domain.ErrValidation, c.SizeBytes, v.maxSize)
	}
	return nil
}

// Accept は Validate を通過した候補の MIME タイプを正規化して返すのだ。
func (v *Validator) Accept(c domain.UploadCandidate) (domain.UploadCandidate, error) {
	if err := v.Validate(c); err != nil {
		return domain.UploadCandidate{}, err
	}
	c.MIMEType = ResolveMIMEType(c.Name, c.MIMEType)
	return c, nil
}

// ResolveMIMEType は宣言された MIME タイプを正規化します。
// 空の場合はファイル拡張子から推測するのだ。
func ResolveMIMEType(name, declared string) string {
	mt := declared
	if mt == "" {
		mt = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
