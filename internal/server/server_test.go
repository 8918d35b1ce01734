package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/shouni/go-photo-sketcher/internal/builder"
	"github.com/shouni/go-photo-sketcher/internal/config"
	"github.com/shouni/go-photo-sketcher/pkg/domain"
	"github.com/shouni/go-photo-sketcher/pkg/encoder"
	"github.com/shouni/go-photo-sketcher/pkg/intake"
	"github.com/shouni/go-photo-sketcher/pkg/supervisor"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// fakeGenerator は release が閉じられるまで待ってからスケッチを返す偽の生成器なのだ。
type fakeGenerator struct {
	release chan struct{}
	err     error
}

func (g *fakeGenerator) Generate(ctx context.Context, payload string, mimeType string) (domain.DataURL, error) {
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return domain.NewDataURL("image/png", []byte("sketch:"+payload)), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, gen *fakeGenerator) *Server {
	t.Helper()
	app := builder.NewAppContext(
		&config.Config{SessionTTL: time.Hour},
		intake.NewValidator(),
		encoder.NewDataURLEncoder(intake.MaxFileSize),
		gen,
	)
	s, err := New(app, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

// client はクッキーを保持しながらハンドラーを直接呼び出すテスト用のクライアントです。
type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rec
}

func (c *client) state() stateView {
	c.t.Helper()
	rec := c.do(httptest.NewRequest(http.MethodGet, "/state", nil))
	var v stateJSON
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		c.t.Fatalf("state decode error = %v", err)
	}
	return v.view(c.t)
}

// stateJSON は status を名前のまま受け取り、テスト側で domain.Status に戻すための型なのだ。
type stateJSON struct {
	stateView
	Status string `json:"status"`
}

func (s stateJSON) view(t *testing.T) stateView {
	t.Helper()
	v := s.stateView
	for _, st := range []domain.Status{domain.StatusIdle, domain.StatusLoading, domain.StatusReady, domain.StatusFailed} {
		if st.String() == s.Status {
			v.Status = st
			return v
		}
	}
	t.Fatalf("不明なステータスです: %q", s.Status)
	return v
}

func (c *client) waitStatus(want domain.Status) stateView {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v := c.state()
		if v.Status == want {
			return v
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("status = %s, want %s", v.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (c *client) upload(name, contentType string, body []byte) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		c.t.Fatalf("CreatePart error = %v", err)
	}
	_, _ = part.Write(body)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *client) postForm(path, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func TestServer_IndexCreatesSession(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	c := &client{t: t, handler: s.Handler()}

	rec := c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(c.cookies) == 0 || c.cookies[0].Name != sessionCookieName {
		t.Fatalf("セッションクッキーが発行されていません: %v", c.cookies)
	}
	if !strings.Contains(rec.Body.String(), `action="/upload"`) {
		t.Errorf("Idle のページにアップロードフォームがありません")
	}
	if !strings.Contains(rec.Body.String(), `id="drop-zone"`) {
		t.Errorf("Idle のページにドロップ領域がありません")
	}

	c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if got := s.Sessions().Len(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestServer_UploadToDownload(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	c := &client{t: t, handler: s.Handler()}

	rec := c.upload("photo.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, want 202", rec.Code)
	}

	v := c.waitStatus(domain.StatusReady)
	if !v.HasSource || !v.HasSketch || !v.CanDownload {
		t.Errorf("Ready の状態が不完全です: %+v", v)
	}
	if v.OutputFileName != "photo-sketch.png" {
		t.Errorf("OutputFileName = %q", v.OutputFileName)
	}

	t.Run("元画像とスケッチを取得できる", func(t *testing.T) {
		src := c.do(httptest.NewRequest(http.MethodGet, "/image/source", nil))
		if src.Code != http.StatusOK || src.Body.String() != "jpeg-bytes" {
			t.Errorf("source = %d %q", src.Code, src.Body.String())
		}
		if ct := src.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("source Content-Type = %q", ct)
		}
		sk := c.do(httptest.NewRequest(http.MethodGet, "/image/sketch", nil))
		if sk.Code != http.StatusOK || !strings.HasPrefix(sk.Body.String(), "sketch:") {
			t.Errorf("sketch = %d %q", sk.Code, sk.Body.String())
		}
	})

	t.Run("添付ファイルとしてダウンロードできる", func(t *testing.T) {
		dl := c.do(httptest.NewRequest(http.MethodGet, "/download", nil))
		if dl.Code != http.StatusOK {
			t.Fatalf("download status = %d", dl.Code)
		}
		if got := dl.Header().Get("Content-Disposition"); got != "attachment; filename=photo-sketch.png" {
			t.Errorf("Content-Disposition = %q", got)
		}
	})

	t.Run("リセットで Idle に戻る", func(t *testing.T) {
		rec := c.postForm("/reset", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("reset status = %d", rec.Code)
		}
		v := c.state()
		if v.Status != domain.StatusIdle || v.HasSource || v.HasSketch {
			t.Errorf("リセット後の状態 = %+v", v)
		}
		if dl := c.do(httptest.NewRequest(http.MethodGet, "/download", nil)); dl.Code != http.StatusNoContent {
			t.Errorf("リセット後の download status = %d, want 204", dl.Code)
		}
	})
}

func TestServer_UploadRejected(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	c := &client{t: t, handler: s.Handler()}

	tests := []struct {
		name        string
		fileName    string
		contentType string
		body        []byte
	}{
		{"許可されていない形式", "anim.gif", "image/gif", []byte("gif")},
		{"サイズ超過", "huge.png", "image/png", bytes.Repeat([]byte{0}, int(intake.MaxFileSize)+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.upload(tt.fileName, tt.contentType, tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422", rec.Code)
			}
			if v := c.state(); v.Status != domain.StatusIdle {
				t.Errorf("拒否後の status = %s, want idle", v.Status)
			}
		})
	}

	t.Run("フォームからの送信は通知付きでリダイレクトされる", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("image", "anim.gif")
		_, _ = part.Write([]byte("gif"))
		_ = mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := c.do(req)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/?notice=rejected" {
			t.Errorf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
		}
		page := c.do(httptest.NewRequest(http.MethodGet, "/?notice=rejected", nil))
		if !strings.Contains(page.Body.String(), "10MB") {
			t.Errorf("拒否メッセージが表示されていません")
		}
	})
}

func TestServer_BusyGuard(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	s := newTestServer(t, gen)
	c := &client{t: t, handler: s.Handler()}

	if rec := c.upload("a.png", "image/png", []byte("a")); rec.Code != http.StatusAccepted {
		t.Fatalf("1回目の upload status = %d", rec.Code)
	}
	c.waitStatus(domain.StatusLoading)

	rec := c.upload("b.png", "image/png", []byte("b"))
	if rec.Code != http.StatusConflict {
		t.Errorf("生成中の upload status = %d, want 409", rec.Code)
	}
	if v := c.state(); v.Status != domain.StatusLoading || v.OutputFileName != "a-sketch.png" {
		t.Errorf("生成中の状態が変わっています: %+v", v)
	}

	close(gen.release)
	c.waitStatus(domain.StatusReady)
}

func TestServer_GenerationFailure(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{err: errors.New("quota exceeded")})
	c := &client{t: t, handler: s.Handler()}

	c.upload("a.png", "image/png", []byte("a"))
	v := c.waitStatus(domain.StatusFailed)
	if v.ErrorMessage != domain.MsgGenerationFailed {
		t.Errorf("ErrorMessage = %q", v.ErrorMessage)
	}
	if !v.HasSource {
		t.Errorf("生成に失敗しても元画像は残るのだ: %+v", v)
	}
	page := c.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	for _, want := range []string{
		"Failed to generate sketch.",
		`src="/image/source"`,
		`action="/reset"`,
		`id="drop-zone"`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("失敗時のページに %q がありません", want)
		}
	}
}

func TestServer_ViewMode(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	c := &client{t: t, handler: s.Handler()}

	if rec := c.postForm("/view", "mode=diagonal"); rec.Code != http.StatusBadRequest {
		t.Errorf("不明なモードの status = %d, want 400", rec.Code)
	}
	if rec := c.postForm("/view", "mode=sideBySide"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if v := c.state(); v.ViewMode != domain.ViewSideBySide {
		t.Errorf("ViewMode = %q", v.ViewMode)
	}
}

func TestServer_RecoveryPage(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	c := &client{t: t, handler: s.Handler()}
	c.postForm("/view", "mode=sideBySide")

	panicking := supervisor.Middleware(discardLogger(), s.handleRecovery)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("template exploded")
		}),
	)
	rec := httptest.NewRecorder()
	panicking.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Try Again") || !strings.Contains(body, `action="/reset"`) {
		t.Errorf("回復用ページではありません: %s", body)
	}

	c.postForm("/reset", "")
	if v := c.state(); v.Status != domain.StatusIdle || v.ViewMode != domain.ViewSketch {
		t.Errorf("回復後の状態 = %+v", v)
	}
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Events(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	s := newTestServer(t, gen)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	jar, _ := cookiejar.New(nil)
	httpClient := &http.Client{Jar: jar}
	resp, err := httpClient.Get(ts.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state error = %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := make(http.Header)
	for _, ck := range jar.Cookies(resp.Request.URL) {
		header.Add("Cookie", ck.String())
	}
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/events", &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var firstJSON stateJSON
	if err := wsjson.Read(ctx, conn, &firstJSON); err != nil {
		t.Fatalf("Read error = %v", err)
	}
	if first := firstJSON.view(t); first.Status != domain.StatusIdle {
		t.Errorf("最初のスナップショット = %s, want idle", first.Status)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/view", strings.NewReader("mode=sideBySide"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err = httpClient.Do(req)
	if err != nil {
		t.Fatalf("POST /view error = %v", err)
	}
	resp.Body.Close()

	var next stateJSON
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("Read error = %v", err)
	}
	if next.ViewMode != domain.ViewSideBySide {
		t.Errorf("ViewMode = %q, want sideBySide", next.ViewMode)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(builder.AppContext{}, nil); err == nil {
		t.Error("Config なしでエラーになりません")
	}
}
