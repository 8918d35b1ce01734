package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shouni/go-photo-sketcher/pkg/domain"
	"github.com/shouni/go-photo-sketcher/pkg/intake"
	"github.com/shouni/go-photo-sketcher/pkg/supervisor"
	"github.com/shouni/go-photo-sketcher/pkg/workflow"
)

const (
	uploadField = "image"
	// multipart のヘッダー分の余裕を持たせた本文の上限です。
	maxUploadBody   = intake.MaxFileSize + 1<<20
	multipartMemory = 1 << 20

	noticeRejected = "rejected"
	noticeBusy     = "busy"
)

func noticeMessage(code string) string {
	switch code {
	case noticeRejected:
		return domain.MsgUploadRejected
	case noticeBusy:
		return domain.MsgUploadBusy
	default:
		return ""
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessions.Controller(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}

	data := pageData{
		Title:  pageTitle,
		State:  newStateView(ctrl.Snapshot()),
		Notice: noticeMessage(r.URL.Query().Get("notice")),
	}
	var body []byte
	err = supervisor.Guard(s.logger, "page", func() error {
		var rerr error
		body, rerr = s.templates.render(indexTemplate, data)
		return rerr
	})
	if err != nil {
		s.handleRecovery(w, r)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

// handleRecovery は描画に失敗したときの回復用ページを返します。
// ボタンは /reset に送信され、状態が Idle に戻るのだ。
func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	body, err := s.templates.render(recoveryTemplate, pageData{
		Title:  pageTitle,
		Notice: domain.MsgRenderFailed,
	})
	if err != nil {
		s.logger.Error("回復用ページの描画に失敗しました", "error", err)
		http.Error(w, domain.MsgRenderFailed, http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusInternalServerError, body)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessions.Controller(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(ctrl.Snapshot()))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessions.Controller(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}

	// 生成中は新しいアップロードを受け付けないのだ
	if ctrl.Snapshot().Status == domain.StatusLoading {
		s.respondNotice(w, r, http.StatusConflict, noticeBusy)
		return
	}

	cand, err := s.readCandidate(w, r)
	if err != nil {
		s.logger.Info("アップロードを拒否しました", "error", err)
		s.respondNotice(w, r, http.StatusUnprocessableEntity, noticeRejected)
		return
	}

	ctrl.Submit(s.baseCtx, cand)
	s.respondState(w, r, http.StatusAccepted, ctrl)
}

// readCandidate はフォームからファイルを取り出して検証し、本文をメモリに読み込みます。
// multipart の一時ファイルはリクエスト終了時に消えるので、生成処理より先に読み切る必要があるのだ。
func (s *Server) readCandidate(w http.ResponseWriter, r *http.Request) (domain.UploadCandidate, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return domain.UploadCandidate{}, errors.Join(domain.ErrValidation, err)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return domain.UploadCandidate{}, errors.Join(domain.ErrValidation, err)
	}
	defer file.Close()

	cand, err := s.app.Validator.Accept(domain.UploadCandidate{
		Name:      header.Filename,
		MIMEType:  header.Header.Get("Content-Type"),
		SizeBytes: header.Size,
	})
	if err != nil {
		return domain.UploadCandidate{}, err
	}

	data, err := io.ReadAll(io.LimitReader(file, intake.MaxFileSize+1))
	if err != nil {
		return domain.UploadCandidate{}, errors.Join(domain.ErrValidation, err)
	}
	cand.Body = bytes.NewReader(data)
	return cand, nil
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessions.Controller(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	ctrl.Reset()
	s.respondState(w, r, http.StatusOK, ctrl)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessions.Controller(w, r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	mode, err := domain.ParseViewMode(r.FormValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctrl.SetViewMode(mode)
	s.respondState(w, r, http.StatusOK, ctrl)
}

// handleDownload はスケッチを添付ファイルとして返します。
// ダウンロードできない状態では何もせず 204 を返すのだ。
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.sessions.Lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	dl, ok := ctrl.Download()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := dl.Image.Bytes()
	if err != nil {
		s.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", dl.Image.MIMEType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.sessions.Lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	snap := ctrl.Snapshot()
	var img domain.DataURL
	switch r.PathValue("kind") {
	case "source":
		img = snap.SourceImage
	case "sketch":
		img = snap.GeneratedImage
	}
	if img.IsZero() {
		http.NotFound(w, r)
		return
	}

	data, err := img.Bytes()
	if err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", img.MIMEType())
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

// respondState はフォーム送信にはトップページへのリダイレクトを、JSON クライアントには状態を返します。
func (s *Server) respondState(w http.ResponseWriter, r *http.Request, status int, ctrl *workflow.Controller) {
	if wantsJSON(r) {
		writeJSON(w, status, newStateView(ctrl.Snapshot()))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) respondNotice(w http.ResponseWriter, r *http.Request, status int, code string) {
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"error": noticeMessage(code)})
		return
	}
	http.Redirect(w, r, "/?notice="+url.QueryEscape(code), http.StatusSeeOther)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("リクエストの処理に失敗しました", "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
