package source

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PushFeedConfig configures the websocket client for the primary
// provider's push stream. An empty URL disables the feed.
type PushFeedConfig struct {
	URL            string
	Token          string
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	HandshakeGrace time.Duration
}

// PushFeed consumes the live movement stream from the darwin gateway and
// fans frames out to registered handlers. It reconnects with capped
// exponential backoff until stopped.
type PushFeed struct {
	cfg PushFeedConfig

	mu      sync.Mutex
	status  FeedStatus
	subs    map[int]func(RawEvent)
	nextID  int
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPushFeed builds the push feed client from explicit configuration
func NewPushFeed(cfg PushFeedConfig) *PushFeed {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.HandshakeGrace <= 0 {
		cfg.HandshakeGrace = 10 * time.Second
	}
	return &PushFeed{
		cfg:    cfg,
		status: FeedIdle,
		subs:   make(map[int]func(RawEvent)),
	}
}

// Enabled reports whether a stream URL is configured
func (f *PushFeed) Enabled() bool { return f.cfg.URL != "" }

// Status returns the current connection lifecycle state
func (f *PushFeed) Status() FeedStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *PushFeed) setStatus(s FeedStatus) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

// Subscribe registers a handler for every incoming frame. The returned
// unsubscribe func is idempotent.
func (f *PushFeed) Subscribe(fn func(RawEvent)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Start launches the connection loop. It returns immediately; frames are
// delivered asynchronously to subscribers. Calling Start on a feed that
// is already running is a no-op.
func (f *PushFeed) Start(ctx context.Context) error {
	if !f.Enabled() {
		return NewError(darwinName, CodeNotEnabled, "push feed not configured")
	}

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	go f.run(runCtx, done)
	return nil
}

// Stop tears the connection down and waits for the loop to exit
func (f *PushFeed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	f.setStatus(FeedStopped)
}

func (f *PushFeed) run(ctx context.Context, done chan struct{}) {
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		close(done)
	}()

	backoff := f.cfg.ReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		f.setStatus(FeedConnecting)

		dialer := websocket.Dialer{HandshakeTimeout: f.cfg.HandshakeGrace}
		header := http.Header{}
		if f.cfg.Token != "" {
			header.Set("Authorization", "Bearer "+f.cfg.Token)
		}

		conn, _, err := dialer.DialContext(ctx, f.cfg.URL, header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("push feed: dial %s failed: %v (retry in %s)", f.cfg.URL, err, backoff)
			f.setStatus(FeedReconnecting)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > f.cfg.ReconnectMax {
				backoff = f.cfg.ReconnectMax
			}
			continue
		}

		f.setStatus(FeedConnected)
		backoff = f.cfg.ReconnectMin

		// close the socket when the context ends so ReadMessage unblocks
		closed := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-closed:
			}
		}()

		f.readLoop(conn)
		close(closed)
		conn.Close()
	}
}

func (f *PushFeed) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var ev RawEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("push feed: dropping malformed frame: %v", err)
			continue
		}
		ev.ReceivedAt = time.Now().UTC()

		f.mu.Lock()
		handlers := make([]func(RawEvent), 0, len(f.subs))
		for _, fn := range f.subs {
			handlers = append(handlers, fn)
		}
		f.mu.Unlock()

		for _, fn := range handlers {
			fn(ev)
		}
	}
}
