package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const dataURLPrefix = "data:"

// DataURL は MIME タイプとペイロードを1本の文字列に埋め込んだ自己記述型の画像表現です。
// 形式は "data:<mime>;base64,<payload>" なのだ。
type DataURL string

// NewDataURL は生のバイト列と MIME タイプから DataURL を組み立てます。
func NewDataURL(mimeType string, data []byte) DataURL {
	return DataURL(fmt.Sprintf("%s%s;base64,%s", dataURLPrefix, mimeType, base64.StdEncoding.EncodeToString(data)))
}

// ParseDataURL は文字列を検証して DataURL として返すのだ。
func ParseDataURL(s string) (DataURL, error) {
	d := DataURL(s)
	if !strings.HasPrefix(s, dataURLPrefix) {
		return "", fmt.Errorf("data URL ではありません: prefix %q がないのだ", dataURLPrefix)
	}
	header, _, ok := strings.Cut(s, ",")
	if !ok {
		return "", fmt.Errorf("data URL にペイロード区切りがありません")
	}
	if !strings.HasSuffix(header, ";base64") {
		return "", fmt.Errorf("base64 以外の data URL には対応していません: %q", header)
	}
	if d.MIMEType() == "" {
		return "", fmt.Errorf("data URL に MIME タイプがありません")
	}
	return d, nil
}

// IsZero は値が空かどうかを返します。
func (d DataURL) IsZero() bool {
	return d == ""
}

// MIMEType はヘッダー部に宣言された MIME タイプを返します。
func (d DataURL) MIMEType() string {
	header, _, _ := strings.Cut(strings.TrimPrefix(string(d), dataURLPrefix), ",")
	mt, _, _ := strings.Cut(header, ";")
	return mt
}

// Payload はエンコード方式のプレフィックスを取り除いた base64 部分を返すのだ。
func (d DataURL) Payload() string {
	_, payload, ok := strings.Cut(string(d), ",")
	if !ok {
		return ""
	}
	return payload
}

// Bytes はペイロードをデコードした生のバイト列を返します。
func (d DataURL) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(d.Payload())
	if err != nil {
		return nil, fmt.Errorf("data URL のデコードに失敗しました: %w", err)
	}
	return data, nil
}

// String は DataURL をそのまま文字列として返します。
func (d DataURL) String() string {
	return string(d)
}
