package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"datafeed-go/internal/bus"
	"datafeed-go/internal/db"
	"datafeed-go/internal/exchange"
	"datafeed-go/internal/market"
	"datafeed-go/internal/metrics"
	"datafeed-go/pkg/log"
)

// ServerConfig задаёт конфигурацию HTTP-сервера
type ServerConfig struct {
	Port int
}

// Controller - то, чем API управляет (реализуется app.Manager)
type Controller interface {
	Adapter(name string) (exchange.Adapter, bool)
	Adapters() []exchange.Adapter
	StartStream(exchangeName string, kind market.StreamKind, symbol string) error
	StopStream(exchangeName string, kind market.StreamKind, symbol string) error
	// Stats - дополнительные секции /status (коллектор, монитор возможностей)
	Stats() map[string]interface{}
}

// Server описывает HTTP API сервера
type Server struct {
	cfg      ServerConfig
	ctrl     Controller
	driver   db.DBDriver // может быть nil
	stopChan chan struct{}
	logger   *log.Logger
	http     *http.Server
	started  time.Time
}

// NewServer создаёт новый API-сервер
func NewServer(cfg ServerConfig, ctrl Controller, driver db.DBDriver, stopChan chan struct{}) *Server {
	return &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		driver:   driver,
		stopChan: stopChan,
		logger:   log.New("api"),
		started:  time.Now(),
	}
}

// Handler возвращает маршрутизатор со всеми ручками
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.wrap("/status", s.handleStatus))
	mux.HandleFunc("/config", s.wrap("/config", s.handleConfig))
	mux.HandleFunc("/symbols", s.wrap("/symbols", s.handleSymbols))
	mux.HandleFunc("/history", s.wrap("/history", s.handleHistory))
	mux.HandleFunc("/stream", s.wrap("/stream", s.handleStream))
	mux.HandleFunc("/events", s.wrap("/events", s.handleEvents))
	mux.HandleFunc("/daemon", s.wrap("/daemon", s.handleDaemon))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (s *Server) wrap(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("[API][DEBUG] %s request from %s, params: %v", path, r.RemoteAddr, r.URL.Query())
		h(w, r)
	}
}

// Start запускает HTTP-сервер (блокируется до Shutdown)
func (s *Server) Start() {
	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.Port)
	s.http = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("[API] Server listening on %s", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("[API] HTTP server error: %v", err)
	}
}

// Shutdown останавливает сервер; SSE-клиенты отключаются по закрытию соединений
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// handleStatus возвращает статус адаптеров, коллектора и хоста
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})

	// Состояние БД
	switch {
	case s.driver == nil:
		status["db_status"] = "DISABLED"
	case s.driver.Ping() != nil:
		status["db_status"] = "DISCONNECTED"
	default:
		status["db_status"] = "CONNECTED"
	}

	adapters := s.ctrl.Adapters()
	statuses := make([]exchange.AdapterStatus, 0, len(adapters))
	activeCount := 0
	for _, a := range adapters {
		st := a.Status()
		if st.Active {
			activeCount++
		}
		statuses = append(statuses, st)
	}
	status["adapters"] = statuses

	for k, v := range s.ctrl.Stats() {
		status[k] = v
	}
	status["host"] = sampleResources(r.Context())
	status["uptime"] = int64(time.Since(s.started).Seconds())

	// RUNNING если есть активные адаптеры
	if activeCount > 0 {
		status["daemon_status"] = "RUNNING"
	} else {
		status["daemon_status"] = "STOPPED"
	}
	s.writeJSON(w, http.StatusOK, status)
}

// handleConfig - конфигурация графика биржи
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapter(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, a.DatafeedConfig())
}

// handleSymbols - описание символа
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapter(w, r)
	if !ok {
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		s.writeError(w, exchange.ErrEmptySymbol)
		return
	}
	s.writeJSON(w, http.StatusOK, a.ResolveSymbol(symbol))
}

// handleHistory - свечи за период from..to (секунды)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapter(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := strconv.ParseInt(q.Get("to"), 10, 64)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, "invalid to")
		return
	}
	res, err := a.GetHistory(r.Context(), q.Get("symbol"), q.Get("resolution"), from, to)
	if err != nil {
		s.logger.Warn("[API] history %s %s: %v", a.ExchangeName(), q.Get("symbol"), err)
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleStream запускает или останавливает поток: POST action=start|stop
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeStatus(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, ok := market.ParseStreamKind(r.Form.Get("kind"))
	if !ok {
		s.writeStatus(w, http.StatusBadRequest, "kind must be trades or orderbook")
		return
	}
	name, symbol := r.Form.Get("exchange"), r.Form.Get("symbol")

	var err error
	action := r.Form.Get("action")
	switch action {
	case "start":
		err = s.ctrl.StartStream(name, kind, symbol)
	case "stop":
		err = s.ctrl.StopStream(name, kind, symbol)
	default:
		s.writeStatus(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("[API] stream %s: %s %s %s", action, name, kind, symbol)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok", "action": action, "exchange": name, "kind": string(kind), "symbol": symbol,
	})
}

// handleEvents отдаёт события шины биржи как Server-Sent Events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapter(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeStatus(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = bus.AllTopics
	}
	mb := a.Bus()
	ch := mb.Subscribe(topic, 256)
	defer mb.Unsubscribe(topic, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("[API] failed to encode event %s: %v", ev.Name, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleDaemon управляет демоном
func (s *Server) handleDaemon(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	switch action {
	case "shutdown":
		s.logger.Debug("[API][DEBUG] Sending shutdown signal to daemon")
		go func() { s.stopChan <- struct{}{} }()
		fmt.Fprintln(w, "Daemon shutting down...")
	default:
		s.logger.Debug("[API][DEBUG] Unknown action: %s", action)
		s.writeStatus(w, http.StatusBadRequest, "Unknown action")
	}
}

func (s *Server) adapter(w http.ResponseWriter, r *http.Request) (exchange.Adapter, bool) {
	name := r.URL.Query().Get("exchange")
	a, ok := s.ctrl.Adapter(name)
	if !ok {
		s.writeError(w, fmt.Errorf("%s: %w", name, exchange.ErrUnknownExchange))
		return nil, false
	}
	return a, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var httpErr *exchange.HTTPError
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, exchange.ErrUnknownExchange):
		code = http.StatusNotFound
	case errors.Is(err, exchange.ErrEmptySymbol):
		code = http.StatusBadRequest
	case errors.Is(err, exchange.ErrNotSupported):
		code = http.StatusNotImplemented
	case errors.Is(err, exchange.ErrMissingCredentials):
		code = http.StatusUnauthorized
	case errors.As(err, &httpErr), errors.Is(err, exchange.ErrConnectionTimeout):
		code = http.StatusBadGateway
	}
	s.writeStatus(w, code, err.Error())
}

func (s *Server) writeStatus(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("[API][DEBUG] JSON encode error: %v", err)
	}
}
