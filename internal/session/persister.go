package session

import (
	"context"
	"math/rand"
	"time"

	"github.com/shiv248/editserver/internal/logging"
	"github.com/shiv248/editserver/internal/store"
)

const (
	persistInterval = 3 * time.Second
	persistJitter   = 1 * time.Second
)

// Persister periodically snapshots every active document's text to a
// Store whenever its revision has advanced since the last write, the
// same jittered-poll shape as the teacher's persister in
// pkg/server/server.go.
type Persister struct {
	registry *Registry
	db       *store.Store
}

// NewPersister creates a Persister writing snapshots to db.
func NewPersister(registry *Registry, db *store.Store) *Persister {
	return &Persister{registry: registry, db: db}
}

// Run polls until ctx is canceled, jittering each interval to avoid a
// thundering herd across many documents' goroutines.
func (p *Persister) Run(ctx context.Context, docID string) {
	lastRevision := -1
	for {
		jitter := time.Duration(rand.Int63n(int64(persistJitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(persistInterval + jitter):
		}

		doc, ok := p.registry.Lookup(docID)
		if !ok {
			return
		}

		revision := doc.ES.Revision()
		if revision == lastRevision {
			continue
		}

		if err := p.db.Save(docID, doc.ES.Text()); err != nil {
			logging.Warn("persist failed", "doc", docID, "err", err)
			continue
		}
		lastRevision = revision
	}
}
