package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shouni/go-photo-sketcher/pkg/workflow"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const sessionCookieName = "sketch_session"

// SessionStore はブラウザのセッションごとに1つのコントローラーを保持します。
// 最後のアクセスから TTL が過ぎたセッションは破棄されるのだ。
type SessionStore struct {
	cache         *cache.Cache
	ttl           time.Duration
	newController func() (*workflow.Controller, error)
}

// NewSessionStore は SessionStore を作成します。
func NewSessionStore(ttl time.Duration, newController func() (*workflow.Controller, error)) *SessionStore {
	return &SessionStore{
		cache:         cache.New(ttl, ttl/2+time.Minute),
		ttl:           ttl,
		newController: newController,
	}
}

// Lookup は既存セッションのコントローラーを返します。新しいセッションは作りません。
func (s *SessionStore) Lookup(r *http.Request) (*workflow.Controller, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return nil, false
	}
	v, ok := s.cache.Get(c.Value)
	if !ok {
		return nil, false
	}
	ctrl, ok := v.(*workflow.Controller)
	if !ok {
		return nil, false
	}
	// アクセスのたびに有効期限を延ばすのだ
	s.cache.Set(c.Value, ctrl, s.ttl)
	return ctrl, true
}

// Controller は既存セッションのコントローラーを返し、なければ新しく作ってクッキーを発行します。
func (s *SessionStore) Controller(w http.ResponseWriter, r *http.Request) (*workflow.Controller, error) {
	if ctrl, ok := s.Lookup(r); ok {
		return ctrl, nil
	}

	ctrl, err := s.newController()
	if err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}
	id := uuid.NewString()
	s.cache.Set(id, ctrl, s.ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})
	return ctrl, nil
}

// Len は保持しているセッション数を返します。
func (s *SessionStore) Len() int {
	return s.cache.ItemCount()
}
