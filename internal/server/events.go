package server

import (
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleEvents はセッションの状態が変わるたびにスナップショットを WebSocket で送ります。
// 購読直後に現在の状態が1回送られるのだ。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.sessions.Lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket の確立に失敗しました", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	states, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	// クライアントからのメッセージは読まず、切断だけを検知するのだ
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, newStateView(st)); err != nil {
				s.logger.Debug("状態の送信を終了します", "error", err)
				return
			}
		}
	}
}
