// Package indexer keeps the search index in step with the primary store. It plugs into the
// store's commit lifecycle: documents are projected before commit and written to the search
// client only after the commit succeeded.
package indexer

import (
	"context"
	"errors"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/microblog/internal/search"
	"github.com/d60-Lab/microblog/internal/store"
)

// Mutation is one index write captured from a unit of work.
type Mutation struct {
	Index  string
	ID     string
	Fields map[string]any // nil for deletes
	Delete bool
}

func (m Mutation) key() string { return m.Index + "/" + m.ID }

// Dispatcher applies the mutations of one committed transaction.
type Dispatcher interface {
	Dispatch(ctx context.Context, muts []Mutation)
}

// Indexer is a store.CommitHook.
type Indexer struct {
	client   *search.Client
	registry *search.Registry
	log      *zap.Logger
	retries  int
	dispatch Dispatcher
	report   func(error)
}

type Option func(*Indexer)

// WithRetries allows n extra attempts for a failed mutation. Default is none.
func WithRetries(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.retries = n
		}
	}
}

// WithDispatcher hands committed snapshots to d instead of applying them inline.
func WithDispatcher(d Dispatcher) Option {
	return func(ix *Indexer) { ix.dispatch = d }
}

// WithReporter replaces the error reporter for mutations that stay failed. Default is
// sentry.CaptureException.
func WithReporter(fn func(error)) Option {
	return func(ix *Indexer) { ix.report = fn }
}

func New(client *search.Client, registry *search.Registry, log *zap.Logger, opts ...Option) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	ix := &Indexer{client: client, registry: registry, log: log}
	for _, o := range opts {
		o(ix)
	}
	if ix.dispatch == nil {
		ix.dispatch = syncDispatcher{ix}
	}
	if ix.report == nil {
		ix.report = func(err error) { sentry.CaptureException(err) }
	}
	return ix
}

var _ store.CommitHook = (*Indexer)(nil)

// BeforeCommit snapshots the registered entities of the change set. Unregistered types and
// entities without an id are skipped.
func (ix *Indexer) BeforeCommit(_ context.Context, changes store.ChangeSet) (store.AfterCommit, error) {
	if !ix.client.Enabled() {
		return nil, nil
	}
	muts := ix.snapshot(changes)
	if len(muts) == 0 {
		return nil, nil
	}
	return func(ctx context.Context) {
		ix.dispatch.Dispatch(ctx, muts)
	}, nil
}

func (ix *Indexer) snapshot(changes store.ChangeSet) []Mutation {
	muts := make([]Mutation, 0, len(changes.New)+len(changes.Dirty)+len(changes.Deleted))
	upsert := func(entities []any) {
		for _, e := range entities {
			m, ok := ix.registry.Lookup(e)
			if !ok {
				continue
			}
			id, ok := m.ID(e)
			if !ok {
				continue
			}
			muts = append(muts, Mutation{Index: m.Index, ID: id, Fields: m.Project(e)})
		}
	}
	upsert(changes.New)
	upsert(changes.Dirty)
	for _, e := range changes.Deleted {
		m, ok := ix.registry.Lookup(e)
		if !ok {
			continue
		}
		if id, ok := m.ID(e); ok {
			muts = append(muts, Mutation{Index: m.Index, ID: id, Delete: true})
		}
	}
	return muts
}

// Apply writes muts to the search client. Failures are logged and reported, never returned:
// the transaction that produced them has already committed.
func (ix *Indexer) Apply(ctx context.Context, muts []Mutation) {
	for _, m := range muts {
		ix.apply(ctx, m)
	}
}

func (ix *Indexer) apply(ctx context.Context, m Mutation) {
	var err error
	for attempt := 0; attempt <= ix.retries; attempt++ {
		if m.Delete {
			err = ix.client.Delete(ctx, m.Index, m.ID)
		} else {
			err = ix.client.Upsert(ctx, m.Index, m.ID, m.Fields)
		}
		if err == nil || errors.Is(err, context.Canceled) {
			break
		}
	}
	if err == nil {
		return
	}
	// warn level keeps the logger's sentry hook out of it; the exception is reported once below
	ix.log.Warn("index sync failed, document left stale",
		zap.String("index", m.Index),
		zap.String("id", m.ID),
		zap.Bool("delete", m.Delete),
		zap.Error(err),
	)
	ix.report(err)
}

type syncDispatcher struct{ ix *Indexer }

func (d syncDispatcher) Dispatch(ctx context.Context, muts []Mutation) { d.ix.Apply(ctx, muts) }
