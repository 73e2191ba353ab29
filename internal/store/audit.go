package store

import (
	"context"
	"log"
	"time"

	"coedit/api/internal/collab"
)

// Audit adapts PostgresStore to the session manager's auditor hook. Every
// write is fire-and-forget on its own goroutine: a slow or broken database
// must never stall the editing path.
type Audit struct {
	store   *PostgresStore
	timeout time.Duration
}

func NewAudit(store *PostgresStore) *Audit {
	return &Audit{store: store, timeout: 5 * time.Second}
}

func (a *Audit) RecordOperation(_ context.Context, op collab.TextOperation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.store.InsertOperation(ctx, op); err != nil {
			log.Printf("audit: record operation %s: %v", op.ID, err)
		}
	}()
}

func (a *Audit) RecordComment(_ context.Context, c collab.Comment) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.store.UpsertComment(ctx, c); err != nil {
			log.Printf("audit: record comment %s: %v", c.ID, err)
		}
	}()
}

func (a *Audit) RecordConflict(_ context.Context, c collab.ConflictResolution) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.store.UpsertConflict(ctx, c); err != nil {
			log.Printf("audit: record conflict %s: %v", c.ID, err)
			return
		}
		// Keep the superseded flags on the operation rows in step with the
		// settled conflict.
		if accept, ok := c.Resolution.(collab.AcceptOperation); ok && c.Status == collab.ConflictResolved {
			var losers []string
			for _, id := range c.OperationIDs {
				if id != accept.OperationID {
					losers = append(losers, id)
				}
			}
			if err := a.store.MarkSuperseded(ctx, c.ID, losers); err != nil {
				log.Printf("audit: mark superseded for %s: %v", c.ID, err)
			}
		}
	}()
}

func (a *Audit) RecordSessionEnd(_ context.Context, tr collab.Transcript) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.store.InsertTranscript(ctx, tr); err != nil {
			log.Printf("audit: record session end %s: %v", tr.Session.ID, err)
		}
	}()
}
