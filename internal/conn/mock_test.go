package conn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var errClosedTransport = errors.New("use of closed network connection")

type frame struct {
	typ  int
	data []byte
	err  error
}

// mockTransport 可控的 Transport，读取来自 incoming 通道
type mockTransport struct {
	incoming chan frame
	closedCh chan struct{}
	once     sync.Once

	mu          sync.Mutex
	written     [][]byte
	writtenType []int
	closeCodes  []int
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		incoming: make(chan frame, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockTransport) ReadMessage() (int, []byte, error) {
	select {
	case f := <-m.incoming:
		return f.typ, f.data, f.err
	case <-m.closedCh:
		return 0, nil, errClosedTransport
	}
}

func (m *mockTransport) WriteMessage(messageType int, data []byte) error {
	select {
	case <-m.closedCh:
		return errClosedTransport
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, append([]byte(nil), data...))
	m.writtenType = append(m.writtenType, messageType)
	return nil
}

// WriteClose 模拟对端回应关闭帧
func (m *mockTransport) WriteClose(code int, reason string) error {
	m.mu.Lock()
	m.closeCodes = append(m.closeCodes, code)
	m.mu.Unlock()
	m.incoming <- frame{err: &websocket.CloseError{Code: code, Text: reason}}
	return nil
}

func (m *mockTransport) Close() error {
	m.once.Do(func() { close(m.closedCh) })
	return nil
}

func (m *mockTransport) push(text string) {
	m.incoming <- frame{typ: websocket.TextMessage, data: []byte(text)}
}

func (m *mockTransport) pushClose(code int, reason string) {
	m.incoming <- frame{err: &websocket.CloseError{Code: code, Text: reason}}
}

func (m *mockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

// mockDialer 每次拨号返回新的 mockTransport
type mockDialer struct {
	mu         sync.Mutex
	err        error
	transports []*mockTransport
}

func (d *mockDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	tr := newMockTransport()
	d.transports = append(d.transports, tr)
	return tr, nil
}

func (d *mockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *mockDialer) Last() *mockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// fakeScheduler 记录定时器，由测试手动触发
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Active 尚未触发也未取消的定时器
func (s *fakeScheduler) Active() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Fire 触发定时器（即使已取消，用于验证回调自身的保护）
func (t *fakeTimer) Fire() {
	t.s.mu.Lock()
	t.fired = true
	t.s.mu.Unlock()
	t.fn()
}

// logBuffer 并发安全的日志缓冲
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) Logger() zerolog.Logger {
	return zerolog.New(b)
}

// Entries 按 message 过滤的日志行
func (b *logBuffer) Entries(msg string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(b.buf.String(), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["message"] == msg {
			out = append(out, entry)
		}
	}
	return out
}
