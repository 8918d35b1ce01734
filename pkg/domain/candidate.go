package domain

import (
	"io"
	"path/filepath"
	"strings"
)

// OutputSuffix は生成されたスケッチのファイル名に付与する接尾辞なのだ。
const OutputSuffix = "-sketch.png"

// DefaultOutputFileName は入力ファイル名が決まる前に使う保存名です。
const DefaultOutputFileName = "sketch.png"

// UploadCandidate はバリデーション前の、ユーザーが選んだファイルを表します。
type UploadCandidate struct {
	Name      string
	MIMEType  string
	SizeBytes int64
	Body      io.Reader
}

// OutputFileName は候補ファイル名の最後の拡張子を取り除き、OutputSuffix を付けた名前を返すのだ。
// "photo.jpg" は "photo-sketch.png"、"archive.tar.png" は "archive.tar-sketch.png" になります。
// 拡張子がない名前は空のベース名として扱い、"-sketch.png" を返します。
func OutputFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return OutputSuffix
	}
	return base[:idx] + OutputSuffix
}
