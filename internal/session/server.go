package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/shiv248/editserver/internal/logging"
	"github.com/shiv248/editserver/internal/store"
	"github.com/shiv248/editserver/internal/transport"
)

// Stats mirrors the teacher's /api/stats payload, adapted to this
// domain's connection/shadow concepts instead of user-presence counts
// (presence itself is a named Non-goal).
type Stats struct {
	StartTime      int64 `json:"start_time"`
	NumDocuments   int   `json:"num_documents"`
	NumConnections int   `json:"num_connections"`
}

// Server is the HTTP entry point: it multiplexes documents through a
// Registry and upgrades /api/socket/{id} requests to the line protocol
// over WebSocket.
type Server struct {
	registry  *Registry
	db        *store.Store // nil disables persistence
	mux       *http.ServeMux
	startTime time.Time

	persistOnce sync.Map // docID -> struct{}, guards one persister goroutine per document
}

// NewServer creates a Server backed by registry. db may be nil, in
// which case documents are held in memory only.
func NewServer(registry *Registry, db *store.Store) *Server {
	s := &Server{registry: registry, db: db, mux: http.NewServeMux(), startTime: time.Now()}
	s.mux.HandleFunc("/api/socket/", s.handleSocket)
	s.mux.HandleFunc("/api/text/", s.handleText)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, "/api/socket/")
	if docID == "" {
		http.Error(w, "document id required", http.StatusBadRequest)
		return
	}

	doc := s.registry.GetOrCreate(docID)

	if s.db != nil {
		if _, started := s.persistOnce.LoadOrStore(docID, struct{}{}); !started {
			go NewPersister(s.registry, s.db).Run(context.Background(), docID)
		}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logging.Warn("websocket upgrade failed", "doc", docID, "err", err)
		return
	}
	defer ws.Close(websocket.StatusInternalError, "")

	conn := transport.NewConn(ws)
	c, err := Negotiate(r.Context(), conn, doc.ES)
	if err != nil {
		logging.Warn("negotiation failed", "doc", docID, "err", err)
		return
	}

	if err := c.Run(r.Context()); err != nil && !transport.IsNormalClosure(err) {
		logging.Info("connection ended", "doc", docID, "err", err)
	}
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, "/api/text/")
	if docID == "" {
		http.Error(w, "document id required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if doc, ok := s.registry.Lookup(docID); ok {
		w.Write(doc.ES.Text())
		return
	}
	w.Write(nil)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	conns := 0
	s.registry.Each(func(doc *Document) {
		conns += doc.ES.ConnectionCount()
	})

	stats := Stats{
		StartTime:      s.startTime.Unix(),
		NumDocuments:   s.registry.Count(),
		NumConnections: conns,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// StartCleaner runs the idle-document eviction loop until ctx is
// canceled, same shape as the teacher's StartCleaner/
// cleanupExpiredDocuments in pkg/server/server.go.
func (s *Server) StartCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := s.registry.Evict(time.Now()); len(expired) > 0 {
				logging.Info("cleaner evicted idle documents", "ids", expired)
			}
		}
	}
}
