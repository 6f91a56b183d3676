package wsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"datafeed-go/pkg/log"

	"github.com/gorilla/websocket"
)

// State - состояние соединения
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

const (
	CloseNormal   = websocket.CloseNormalClosure   // 1000
	CloseAbnormal = websocket.CloseAbnormalClosure // 1006

	DefaultReconnectDelay = 5 * time.Second
	closeGrace            = 2 * time.Second
	writeWait             = 5 * time.Second
)

var ErrNotOpen = errors.New("wsclient: socket is not open")

// FrameLogger - приёмник сырых кадров для debug логирования
type FrameLogger interface {
	LogRawReceived(msgType int, data []byte)
	LogRawSent(msgType int, data []byte)
	LogConnection(event string, details ...interface{})
}

// Hooks - колбэки жизненного цикла. Вызываются из горутины чтения соединения.
type Hooks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

type timer interface {
	Stop() bool
}

func timeAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

type Option func(*Socket)

// WithHooks задаёт колбэки
func WithHooks(h Hooks) Option {
	return func(s *Socket) { s.hooks = h }
}

// WithReconnectDelay задаёт фиксированную задержку переподключения
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithPingInterval включает периодический ping (0 - выключен)
func WithPingInterval(d time.Duration) Option {
	return func(s *Socket) { s.pingInterval = d }
}

// WithHeader задаёт заголовки handshake
func WithHeader(h http.Header) Option {
	return func(s *Socket) { s.header = h }
}

// WithName задаёт имя для логов
func WithName(name string) Option {
	return func(s *Socket) { s.logger = log.New("ws-" + name) }
}

// WithFrameLogger подключает логирование сырых кадров
func WithFrameLogger(fl FrameLogger) Option {
	return func(s *Socket) { s.frames = fl }
}

// Socket - соединение с автоматическим переподключением после ненормального закрытия.
// Код 1000 считается намеренным закрытием и переподключения не вызывает.
type Socket struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	hooks          Hooks
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *log.Logger
	frames         FrameLogger
	afterFunc      func(time.Duration, func()) timer

	mu           sync.Mutex
	writeMu      sync.Mutex
	conn         *websocket.Conn
	state        State
	gen          uint64 // поколение соединения, устаревшие горутины себя игнорируют
	closedByUser bool
	retry        timer

	messages   atomic.Int64
	reconnects atomic.Int64
}

// New создаёт сокет в состоянии idle. Соединение открывается через Open.
func New(url string, opts ...Option) *Socket {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	s := &Socket{
		url:            url,
		dialer:         &dialer,
		reconnectDelay: DefaultReconnectDelay,
		logger:         log.New("wsclient"),
		afterFunc:      timeAfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Socket) URL() string { return s.url }

func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) IsOpen() bool { return s.State() == StateOpen }

// MessageCount - число принятых кадров за всё время жизни сокета
func (s *Socket) MessageCount() int64 { return s.messages.Load() }

// ReconnectCount - число запущенных переподключений
func (s *Socket) ReconnectCount() int64 { return s.reconnects.Load() }

// ReconnectDelay возвращает задержку переподключения
func (s *Socket) ReconnectDelay() time.Duration { return s.reconnectDelay }

// Open запускает подключение в фоне. Повторный вызов при активном соединении ничего не делает.
func (s *Socket) Open() {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateOpen || s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	s.closedByUser = false
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.gen++
	g := s.gen
	s.state = StateConnecting
	s.mu.Unlock()

	go s.connect(g)
}

func (s *Socket) connect(g uint64) {
	s.logConnection("CONNECTING", s.url)
	conn, _, err := s.dialer.Dial(s.url, s.header)
	if err != nil {
		s.logger.Error("dial %s failed: %v", s.url, err)
		s.fireError(fmt.Errorf("dial: %w", err))
		s.handleClose(g, CloseAbnormal, err.Error())
		return
	}

	s.mu.Lock()
	if g != s.gen || s.closedByUser {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()

	s.logConnection("CONNECTED", s.url)
	s.logger.Info("connected to %s", s.url)
	if s.hooks.OnOpen != nil {
		s.hooks.OnOpen()
	}

	done := make(chan struct{})
	if s.pingInterval > 0 {
		go s.pingLoop(conn, done)
	}
	s.readLoop(g, conn)
	close(done)
}

func (s *Socket) readLoop(g uint64, conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.handleClose(g, ce.Code, ce.Text)
				return
			}
			if !s.closingByUser() {
				s.logger.Error("read error on %s: %v", s.url, err)
				s.fireError(err)
			}
			s.handleClose(g, CloseAbnormal, err.Error())
			return
		}

		s.messages.Add(1)
		if s.frames != nil {
			s.frames.LogRawReceived(msgType, msg)
		}

		if msgType == websocket.TextMessage && (string(msg) == "ping" || string(msg) == "PING") {
			s.write(conn, websocket.TextMessage, []byte("pong"))
			continue
		}
		if s.hooks.OnMessage != nil {
			s.hooks.OnMessage(msg)
		}
	}
}

func (s *Socket) closingByUser() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedByUser
}

// handleClose: сначала колбэк закрытия, затем (для кода != 1000) планирование переподключения
func (s *Socket) handleClose(g uint64, code int, reason string) {
	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = StateClosed
	if s.closedByUser {
		code = CloseNormal
	}
	s.mu.Unlock()

	s.logConnection("CLOSED", code, reason)
	if code == CloseNormal {
		s.logger.Info("connection to %s closed normally", s.url)
	} else {
		s.logger.Warn("connection to %s closed with code %d (%s), reconnecting in %v", s.url, code, reason, s.reconnectDelay)
	}
	if s.hooks.OnClose != nil {
		s.hooks.OnClose(code, reason)
	}
	if code == CloseNormal {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g != s.gen || s.closedByUser || s.state != StateClosed {
		return
	}
	s.retry = s.afterFunc(s.reconnectDelay, func() { s.reconnect(g) })
}

func (s *Socket) reconnect(g uint64) {
	s.mu.Lock()
	if g != s.gen || s.closedByUser || s.state != StateClosed {
		s.mu.Unlock()
		return
	}
	s.retry = nil
	s.gen++
	ng := s.gen
	s.state = StateConnecting
	s.mu.Unlock()

	s.reconnects.Add(1)
	s.logConnection("RECONNECTING", s.url)
	s.connect(ng)
}

// Send отправляет текстовый кадр. При ошибке вызывается OnError, данные теряются.
func (s *Socket) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		s.logger.Warn("send on %s dropped: %v", s.url, ErrNotOpen)
		s.fireError(ErrNotOpen)
		return ErrNotOpen
	}
	if err := s.write(conn, websocket.TextMessage, data); err != nil {
		err = fmt.Errorf("send: %w", err)
		s.logger.Warn("send on %s dropped: %v", s.url, err)
		s.fireError(err)
		return err
	}
	return nil
}

// SendJSON сериализует v и отправляет как текстовый кадр
func (s *Socket) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.Send(data)
}

func (s *Socket) write(conn *websocket.Conn, msgType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.frames != nil {
		s.frames.LogRawSent(msgType, data)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(msgType, data)
}

// Close закрывает соединение с кодом 1000. Если сокет не открывался - ничего не делает.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.closedByUser = true
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	conn := s.conn
	if conn == nil {
		// dial ещё идёт или уже закрыто: connect увидит closedByUser
		s.state = StateClosed
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	s.mu.Unlock()

	s.logConnection("CLOSING", s.url)
	s.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseNormal, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	if err != nil {
		conn.Close()
		return nil
	}
	// если сервер не ответит close-кадром, чтение прервётся по дедлайну
	conn.SetReadDeadline(time.Now().Add(closeGrace))
	return nil
}

func (s *Socket) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Warn("ping error on %s: %v", s.url, err)
			}
		}
	}
}

func (s *Socket) fireError(err error) {
	if s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}
}

func (s *Socket) logConnection(event string, details ...interface{}) {
	if s.frames != nil {
		s.frames.LogConnection(event, details...)
	}
}
