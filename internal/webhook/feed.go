package webhook

import (
	"encoding/json"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/memorelay/memorelay/internal/pipeline"
)

const feedBufferSize = 16

// Feed fans job state transitions out to websocket subscribers. A slow
// subscriber drops messages rather than stalling the pipeline.
type Feed struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: map[chan []byte]struct{}{}}
}

// Publish is safe to call from any goroutine, including the worker loop.
func (f *Feed) Publish(transition pipeline.JobTransition) {
	if f == nil {
		return
	}
	payload, err := json.Marshal(transition)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (f *Feed) subscribe() chan []byte {
	ch := make(chan []byte, feedBufferSize)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan []byte) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ctx := conn.CloseRead(r.Context())

	ch := f.subscribe()
	defer f.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-ch:
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}
