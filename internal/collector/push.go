package collector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/model"
)

const (
	pushPongWait     = 60 * time.Second
	pushPingPeriod   = 30 * time.Second
	pushMaxMsgSize   = 512 * 1024
	reconnectMin     = time.Second
	reconnectMax     = time.Minute
	DefaultPushDepth = 10_000
)

// relevantPushMessages are the only stream message types the reporter
// cares about; everything else on the socket is ignored.
var relevantPushMessages = map[string]bool{
	"sta:sync":        true,
	"wu.connected":    true,
	"wu.disconnected": true,
	"wu.roam":         true,
	"wu.roam_radio":   true,
	"events":          true,
}

// pushFrame is the wire shape of one stream message.
type pushFrame struct {
	Meta struct {
		Message string `json:"message"`
	} `json:"meta"`
	Data []map[string]interface{} `json:"data"`
}

// streamSession provides the authenticated dial parameters; satisfied
// by *unifi.Client.
type streamSession interface {
	EventsWebsocketURL() string
	CookieHeader() string
	TLSConfig() *tls.Config
}

// PushCollector keeps a long-lived streaming connection whose lifetime
// belongs to the service, not a single run. Events land in a bounded
// ring buffer; a run merely drains it. During disconnects events are
// lost by design — the REST collector is the historical backstop.
type PushCollector struct {
	session streamSession
	logger  *zap.Logger

	mu      sync.Mutex
	ring    []model.LogEntry
	head    int // next write position
	count   int // valid entries in ring
	dropped uint64

	connected atomic.Bool
	everRan   atomic.Bool
}

// NewPushCollector sizes the ring buffer (default 10k when depth <= 0).
func NewPushCollector(session streamSession, depth int, logger *zap.Logger) *PushCollector {
	if depth <= 0 {
		depth = DefaultPushDepth
	}
	return &PushCollector{
		session: session,
		logger:  logger.Named("collector.push"),
		ring:    make([]model.LogEntry, depth),
	}
}

func (p *PushCollector) Name() string { return model.SourcePush.String() }

// Run maintains the streaming connection until the context ends,
// reconnecting with bounded backoff. Intended to run on its own
// goroutine for the life of the service.
func (p *PushCollector) Run(ctx context.Context) {
	p.everRan.Store(true)
	backoff := reconnectMin
	for {
		err := p.readLoop(ctx)
		if p.connected.Load() {
			// The last dial succeeded, so this outage is a fresh one
			// and starts at the bottom of the backoff ladder.
			backoff = reconnectMin
			p.connected.Store(false)
		}
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("push stream disconnected, reconnecting",
			zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// nextBackoff doubles the reconnect delay up to the cap.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMax {
		d = reconnectMax
	}
	return d
}

func (p *PushCollector) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{
		TLSClientConfig:  p.session.TLSConfig(),
		HandshakeTimeout: 15 * time.Second,
	}
	header := http.Header{}
	if ck := p.session.CookieHeader(); ck != "" {
		header.Set("Cookie", ck)
	}

	conn, _, err := dialer.DialContext(ctx, p.session.EventsWebsocketURL(), header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	p.connected.Store(true)
	p.logger.Info("push stream connected")

	conn.SetReadLimit(pushMaxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pushPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pushPongWait))
	})

	// Writer goroutine owns all writes (pings and the close frame),
	// reader owns all reads.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pushPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			case <-ctx.Done():
				conn.SetWriteDeadline(time.Now().Add(time.Second))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		p.ingest(data)
	}
}

func (p *PushCollector) ingest(data []byte) {
	var frame pushFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		p.logger.Debug("unparseable push frame", zap.Error(err))
		return
	}
	if !relevantPushMessages[frame.Meta.Message] {
		return
	}
	for _, raw := range frame.Data {
		entry, err := model.ParseEntry(raw, model.SourcePush)
		if err != nil {
			continue
		}
		p.add(entry)
	}
}

// add inserts into the ring, overwriting the oldest entry when full
// and counting the overwrite as a drop.
func (p *PushCollector) add(entry model.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == len(p.ring) {
		p.dropped++
	} else {
		p.count++
	}
	p.ring[p.head] = entry
	p.head = (p.head + 1) % len(p.ring)
}

// Collect drains the buffer and returns the entries inside the window.
// It fails only when the stream never came up, so the orchestrator can
// fall through to REST.
func (p *PushCollector) Collect(_ context.Context, window model.Window) ([]model.LogEntry, error) {
	entries := p.drain()
	if len(entries) == 0 && p.everRan.Load() && !p.connected.Load() {
		return nil, fmt.Errorf("push collector: stream not connected")
	}

	inWindow := entries[:0]
	for _, e := range entries {
		if window.Contains(e.Timestamp) {
			inWindow = append(inWindow, e)
		}
	}
	return inWindow, nil
}

func (p *PushCollector) drain() []model.LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return nil
	}
	out := make([]model.LogEntry, 0, p.count)
	start := (p.head - p.count + len(p.ring)) % len(p.ring)
	for i := 0; i < p.count; i++ {
		out = append(out, p.ring[(start+i)%len(p.ring)])
	}
	p.count = 0
	return out
}

// Dropped reports how many events the ring overwrote before they were
// drained.
func (p *PushCollector) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
