// Package server provides the monitor HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/NovaGlider/musicboom/internal/orchestrator"
	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
	"github.com/NovaGlider/musicboom/internal/orchestrator/history"
	"github.com/NovaGlider/musicboom/internal/orchestrator/monitor"
	"github.com/NovaGlider/musicboom/internal/trace"
)

// Pipeline is the read side of the orchestrator the monitor exposes.
type Pipeline interface {
	Status() orchestrator.Status
	History() *history.Store
}

// Message types.
type Message struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

type FramesMessage struct {
	Type   string         `json:"type"`
	Frames []haptic.Frame `json:"frames"`
}

type StatusMessage struct {
	Type   string              `json:"type"`
	Status orchestrator.Status `json:"status"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server streams processed frames to monitor clients and answers status
// queries.
type Server struct {
	pipeline Pipeline
	batcher  *monitor.Batcher

	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter
}

// New creates a server for p. Call Run to start streaming frames.
func New(p Pipeline) *Server {
	s := &Server{
		pipeline: p,
		conns:    make(map[*websocket.Conn]*rateLimiter),
	}
	s.batcher = monitor.NewBatcher(s.broadcast, monitor.DefaultBatcherMaxSize, monitor.DefaultBatcherFlushDelay)
	return s
}

// Run forwards frame events to connected clients until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.batcher.Run(ctx, s.pipeline.History().Events())
}

// Close delivers pending frames and waits for in-flight writes.
func (s *Server) Close() {
	s.batcher.Stop()
}

// Clients returns the number of connected monitor clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("monitor client connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "malformed message"})
			continue
		}

		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(msg); ok {
			ctx = trace.WithContext(ctx, tc)
		}

		switch base.Type {
		case "ping":
			_ = wsjson.Write(ctx, conn, PongMessage{Type: "pong"})
		case "status":
			_ = wsjson.Write(ctx, conn, StatusMessage{Type: "status", Status: s.pipeline.Status()})
		default:
			trace.Logger(ctx).Debug("ignoring monitor message", "type", base.Type)
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "unknown message type " + strconv.Quote(base.Type)})
		}
	}
}

// broadcast is the batcher sink. Slow clients get their own write deadline
// so one of them cannot hold up the others.
func (s *Server) broadcast(ctx context.Context, frames []haptic.Frame) error {
	msg := FramesMessage{Type: "frames", Frames: frames}

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(ctx, BroadcastWriteTimeout)
			defer cancel()
			if err := wsjson.Write(wctx, c, msg); err != nil {
				trace.Logger(ctx).Debug("monitor write failed", "error", err)
			}
		}(c)
	}
	wg.Wait()
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := DefaultHistoryFrames
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorMessage{Type: "error", Message: "n must be a positive integer"})
			return
		}
		n = min(parsed, MaxHistoryFrames)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  s.pipeline.History().Total(),
		"frames": s.pipeline.History().Recent(n),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
