package intake

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
)

// OpenFile はローカルファイルから候補を作成します。
// MIME タイプは拡張子から推測し、本文はメモリに読み込むので同じ候補を何度でも渡せるのだ。
func OpenFile(path string) (domain.UploadCandidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.UploadCandidate{}, fmt.Errorf("ファイル情報の取得に失敗しました (%s): %w", path, err)
	}
	if info.IsDir() {
		return domain.UploadCandidate{}, fmt.Errorf("%w: ディレクトリは指定できません: %s", domain.ErrValidation, path)
	}
	name := filepath.Base(path)
	cand := domain.UploadCandidate{
		Name:      name,
		MIMEType:  ResolveMIMEType(name, ""),
		SizeBytes: info.Size(),
	}
	// 大きすぎるファイルは読み込む前に弾くのだ
	if err := NewValidator().Validate(cand); err != nil {
		return domain.UploadCandidate{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadCandidate{}, fmt.Errorf("ファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	cand.SizeBytes = int64(len(data))
	cand.Body = bytes.NewReader(data)
	return cand, nil
}
