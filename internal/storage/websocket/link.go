package websocket

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/kartlab/vehiclesim/pkg/streaming"
)

const (
	outboxSize        = 10_000
	redialAttempts    = 10
	redialFirst       = time.Second
	redialCeiling     = 30 * time.Second
	frameDeadline     = 10 * time.Second
	defaultAckTimeout = 10 * time.Second
)

var (
	// ErrLinkDown is returned once reconnecting has been abandoned.
	ErrLinkDown = errors.New("websocket link down")
	// ErrAckTimeout is returned when the server does not acknowledge in time.
	ErrAckTimeout = errors.New("timeout waiting for ack")
	errLinkClosed = errors.New("websocket link closed")
)

// link owns one logical stream to the dashboard. A single supervisor
// goroutine writes frames in order and redials when the socket breaks;
// frames queued meanwhile wait in the outbox.
type link struct {
	target *url.URL
	log    *slog.Logger

	outbox  chan []byte
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once

	started atomic.Bool
	down    atomic.Bool // set once redialing is abandoned
	dropped atomic.Uint64

	mu      sync.Mutex
	current *ws.Conn
	header  [][]byte // replayed on every new socket
	waiters map[string][]chan struct{}
}

func newLink(logger *slog.Logger) *link {
	return &link{
		log:     logger,
		outbox:  make(chan []byte, outboxSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		waiters: make(map[string][]chan struct{}),
	}
}

// open dials once and starts the supervisor. The secret travels as a query
// parameter.
func (l *link) open(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	l.target = u

	conn, err := l.dial()
	if err != nil {
		return err
	}
	l.started.Store(true)
	go l.supervise(conn)
	return nil
}

func (l *link) dial() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(l.target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", l.target.Host, err)
	}
	return conn, nil
}

func (l *link) supervise(conn *ws.Conn) {
	defer close(l.stopped)

	var retry []byte
	for {
		l.setCurrent(conn)
		broken := make(chan error, 1)
		go l.readAcks(conn, broken)

		retry = l.pump(conn, retry, broken)
		l.setCurrent(nil)
		_ = conn.Close()

		if l.stopping() {
			return
		}
		if conn = l.redial(); conn == nil {
			if !l.stopping() {
				l.abandon(retry)
			}
			return
		}
		if l.inHeader(retry) {
			retry = nil
		}
	}
}

// pump writes frames until the socket breaks or the link stops. It returns
// the frame that failed to write, if any, so it goes out first next time.
func (l *link) pump(conn *ws.Conn, retry []byte, broken <-chan error) []byte {
	if retry != nil {
		if err := writeFrame(conn, retry); err != nil {
			l.log.Warn("WebSocket write error", "error", err)
			return retry
		}
	}
	for {
		select {
		case <-l.stop:
			return nil
		case err := <-broken:
			l.log.Warn("WebSocket read error", "error", err)
			return nil
		case frame := <-l.outbox:
			if err := writeFrame(conn, frame); err != nil {
				l.log.Warn("WebSocket write error", "error", err)
				return frame
			}
		}
	}
}

func writeFrame(conn *ws.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(frameDeadline)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, frame)
}

// readAcks resolves ack waiters until the socket fails.
func (l *link) readAcks(conn *ws.Conn, broken chan<- error) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			broken <- err
			return
		}
		ack, ok := streaming.ParseAck(frame)
		if !ok {
			l.log.Debug("Ignoring server frame", "raw", string(frame))
			continue
		}
		l.resolve(ack.For)
	}
}

// redial reconnects with exponential backoff and replays the run header.
// It returns nil when the link stops or every attempt failed.
func (l *link) redial() *ws.Conn {
	wait := redialFirst
	for attempt := 1; attempt <= redialAttempts; attempt++ {
		select {
		case <-l.stop:
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, redialCeiling)

		l.log.Info("Reconnecting to WebSocket", "attempt", attempt)
		conn, err := l.dial()
		if err != nil {
			l.log.Warn("Reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		header := l.headerFrames()
		if err := replay(conn, header); err != nil {
			l.log.Warn("Run header replay failed", "attempt", attempt, "error", err)
			_ = conn.Close()
			continue
		}
		l.log.Info("WebSocket reconnected", "attempt", attempt, "replayed", len(header))
		return conn
	}
	l.log.Error("Giving up on WebSocket", "attempts", redialAttempts)
	return nil
}

func replay(conn *ws.Conn, frames [][]byte) error {
	for _, f := range frames {
		if err := writeFrame(conn, f); err != nil {
			return err
		}
	}
	return nil
}

// abandon marks the link down and discards frames until close.
func (l *link) abandon(retry []byte) {
	l.down.Store(true)
	l.failWaiters()
	if retry != nil {
		l.dropped.Add(1)
	}
	for {
		select {
		case <-l.stop:
			return
		case <-l.outbox:
			l.dropped.Add(1)
		}
	}
}

// send queues a frame without blocking the caller.
func (l *link) send(frame []byte) {
	if l.down.Load() {
		l.dropped.Add(1)
		return
	}
	select {
	case l.outbox <- frame:
	default:
		l.dropped.Add(1)
		l.log.Warn("WebSocket outbox full, dropping frame")
	}
}

// request queues a frame and waits for the server to acknowledge its type.
func (l *link) request(frameType string, frame []byte, timeout time.Duration) error {
	if l.down.Load() {
		return ErrLinkDown
	}
	acked := l.expect(frameType)
	l.send(frame)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case _, ok := <-acked:
		if !ok {
			return fmt.Errorf("%w before ack of %q", ErrLinkDown, frameType)
		}
		return nil
	case <-timer.C:
		l.cancel(frameType, acked)
		return fmt.Errorf("%w of %q", ErrAckTimeout, frameType)
	case <-l.stop:
		return fmt.Errorf("%w while waiting for ack of %q", errLinkClosed, frameType)
	}
}

func (l *link) expect(frameType string) chan struct{} {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.waiters[frameType] = append(l.waiters[frameType], ch)
	l.mu.Unlock()
	return ch
}

// resolve wakes the oldest waiter for frameType.
func (l *link) resolve(frameType string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.waiters[frameType]
	if len(queue) == 0 {
		return
	}
	queue[0] <- struct{}{}
	l.waiters[frameType] = queue[1:]
}

func (l *link) cancel(frameType string, ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.waiters[frameType]
	for i, w := range queue {
		if w == ch {
			l.waiters[frameType] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

func (l *link) failWaiters() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for frameType, queue := range l.waiters {
		for _, ch := range queue {
			close(ch)
		}
		delete(l.waiters, frameType)
	}
}

// setHeader replaces the replayed frames; appendHeader extends them.
func (l *link) setHeader(frames ...[]byte) {
	l.mu.Lock()
	l.header = frames
	l.mu.Unlock()
}

func (l *link) appendHeader(frame []byte) {
	l.mu.Lock()
	l.header = append(l.header, frame)
	l.mu.Unlock()
}

func (l *link) headerFrames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.header...)
}

func (l *link) inHeader(frame []byte) bool {
	if frame == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.header {
		if bytes.Equal(h, frame) {
			return true
		}
	}
	return false
}

func (l *link) setCurrent(conn *ws.Conn) {
	l.mu.Lock()
	l.current = conn
	l.mu.Unlock()
}

func (l *link) stopping() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// close says goodbye to the server and waits for the supervisor. It is safe
// to call on a link that never opened.
func (l *link) close() {
	l.once.Do(func() {
		l.mu.Lock()
		conn := l.current
		l.mu.Unlock()
		if conn != nil {
			// WriteControl is safe alongside the supervisor's writes
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(frameDeadline))
		}
		close(l.stop)
		if l.started.Load() {
			<-l.stopped
		}
	})
}
