// Package session ties the core packages (history, shadow, edit, ot)
// to HTTP: it multiplexes many documents behind a registry, negotiates
// new connections, runs each connection's read loop, and owns the
// ambient concerns (persistence, idle cleanup, stats) that spec.md
// leaves as external collaborators.
package session

import (
	"sync"
	"time"

	"github.com/shiv248/editserver/internal/history"
)

// Config bounds the resources a single document's EditServer is
// allowed to use; every document in a Registry shares one Config.
type Config struct {
	MaxDocumentSize int
	OutboxCapacity  int
	IdleExpiry      time.Duration
}

// DefaultConfig mirrors the teacher's environment-variable defaults.
func DefaultConfig() Config {
	return Config{
		MaxDocumentSize: 10 << 20, // 10 MiB
		OutboxCapacity:  16,
		IdleExpiry:      24 * time.Hour,
	}
}

// Document pairs one document's EditServer with bookkeeping the
// registry needs but the core doesn't: when it was last touched by any
// connection, for the idle cleaner.
type Document struct {
	ID           string
	ES           *history.EditServer
	LastAccessed time.Time
}

// Registry multiplexes many documents by id, creating them lazily on
// first negotiation. It is the direct descendant of the teacher's
// sync.Map-keyed document map.
type Registry struct {
	mu        sync.Mutex
	documents map[string]*Document
	cfg       Config
	loader    func(id string) ([]byte, bool)
}

// NewRegistry creates an empty registry. loader, if non-nil, is
// consulted for a document's persisted text the first time it is
// requested and is absent from memory (internal/store.Loader).
func NewRegistry(cfg Config, loader func(id string) ([]byte, bool)) *Registry {
	return &Registry{
		documents: make(map[string]*Document),
		cfg:       cfg,
		loader:    loader,
	}
}

// GetOrCreate returns the document for id, creating it (optionally
// from persisted text) if this is the first time it's been requested.
func (r *Registry) GetOrCreate(id string) *Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.documents[id]; ok {
		doc.LastAccessed = time.Now()
		return doc
	}

	var es *history.EditServer
	if r.loader != nil {
		if text, ok := r.loader(id); ok {
			es = history.NewEditServerWithText(text, r.cfg.MaxDocumentSize, r.cfg.OutboxCapacity)
		}
	}
	if es == nil {
		es = history.NewEditServer(r.cfg.MaxDocumentSize, r.cfg.OutboxCapacity)
	}

	doc := &Document{ID: id, ES: es, LastAccessed: time.Now()}
	r.documents[id] = doc
	return doc
}

// Lookup returns the document for id without creating it.
func (r *Registry) Lookup(id string) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[id]
	return doc, ok
}

// Count returns the number of active documents.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.documents)
}

// Evict removes documents untouched for longer than cfg.IdleExpiry and
// returns their ids, for the caller to log or flush to storage first.
func (r *Registry) Evict(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for id, doc := range r.documents {
		if now.Sub(doc.LastAccessed) > r.cfg.IdleExpiry {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.documents, id)
	}
	return expired
}

// Each calls f for every currently registered document; used by the
// persister and stats endpoint.
func (r *Registry) Each(f func(*Document)) {
	r.mu.Lock()
	docs := make([]*Document, 0, len(r.documents))
	for _, doc := range r.documents {
		docs = append(docs, doc)
	}
	r.mu.Unlock()

	for _, doc := range docs {
		f(doc)
	}
}
