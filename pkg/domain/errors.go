package domain

import "errors"

// エラー分類の番兵値なのだ。呼び出し側は errors.Is で判定します。
var (
	// ErrValidation は受付時にファイルが拒否されたことを示します。ワークフローには入りません。
	ErrValidation = errors.New("validation error")
	// ErrEncoding は元ファイルをエンコードできなかったことを示します。
	ErrEncoding = errors.New("encoding error")
	// ErrGeneration はリモートのスケッチ生成が失敗したことを示します。
	ErrGeneration = errors.New("generation error")
	// ErrRender は描画中の想定外の失敗を示します。
	ErrRender = errors.New("render error")
)

// ユーザーに見せてよい固定メッセージです。内部エラーの詳細は含めません。
const (
	MsgGenerationFailed = "Failed to generate sketch. Please try another image."
	MsgUploadRejected   = "Please upload a PNG, JPG, or WEBP image up to 10MB."
	MsgUploadBusy       = "A sketch is already in progress. Please wait for it to finish."
	MsgRenderFailed     = "The application encountered an unexpected error. Please try again."
)
