// Package encoder は候補ファイルを自己記述型の data URL に変換します。
package encoder

import (
	"context"
	"fmt"
	"io"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
)

// FileEncoder はバイナリのファイルを、MIME タイプとペイロードを含む文字列へ変換する契約です。
type FileEncoder interface {
	Encode(ctx context.Context, c domain.UploadCandidate) (domain.DataURL, error)
}

// DataURLEncoder は本文を最後まで読み込んで base64 の data URL を作成するのだ。
// 途中までの読み込み結果が外に出ることはありません。
type DataURLEncoder struct {
	maxBytes int64
}

// NewDataURLEncoder は読み込み上限を指定して DataURLEncoder を作成します。
// maxBytes が 0 以下なら上限なしなのだ。
func NewDataURLEncoder(maxBytes int64) *DataURLEncoder {
	return &DataURLEncoder{maxBytes: maxBytes}
}

// Encode は候補の本文を読み込み、data URL として返します。
func (e *DataURLEncoder) Encode(ctx context.Context, c domain.UploadCandidate) (domain.DataURL, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrEncoding, err)
	}
	if c.Body == nil {
		return "", fmt.Errorf("%w: ファイル本文がありません: %s", domain.ErrEncoding, c.Name)
	}
	if c.MIMEType == "" {
		return "", fmt.Errorf("%w: MIME タイプが未設定です: %s", domain.ErrEncoding, c.Name)
	}

	r := c.Body
	if e.maxBytes > 0 {
		r = io.LimitReader(c.Body, e.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: ファイルの読み込みに失敗しました (%s): %w", domain.ErrEncoding, c.Name, err)
	}
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return "", fmt.Errorf("%w: 読み込んだサイズが上限を超えました (%s)", domain.ErrEncoding, c.Name)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: ファイルが空です: %s", domain.ErrEncoding, c.Name)
	}

	return domain.NewDataURL(c.MIMEType, data), nil
}
