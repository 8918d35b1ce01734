package workflow

import "github.com/shouni/go-photo-sketcher/pkg/domain"

// Subscribe は状態のスナップショットを受け取るチャネルを登録します。
// 登録直後に現在の状態が1件届き、以降は遷移のたびに最新の状態だけが届くのだ。
// 返される関数で登録を解除すると、チャネルは閉じられます。
func (c *Controller) Subscribe() (<-chan domain.State, func()) {
	ch := make(chan domain.State, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// notifyLocked は c.mu を保持した状態で呼び出すこと。
// 読み手が遅れていても古いスナップショットを捨てて最新のものに置き換えるので、ブロックしません。
func (c *Controller) notifyLocked() {
	snap := c.state
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
