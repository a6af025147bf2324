package indexer

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/microblog/internal/search"
)

const defaultBatchSize = 500

// Reindexer rebuilds an index from the primary store. It is not transactional with concurrent
// writers; their own commits fix anything it races with.
type Reindexer struct {
	db        *gorm.DB
	client    *search.Client
	registry  *search.Registry
	log       *zap.Logger
	batchSize int
}

func NewReindexer(db *gorm.DB, client *search.Client, registry *search.Registry, log *zap.Logger, batchSize int) *Reindexer {
	if log == nil {
		log = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Reindexer{db: db, client: client, registry: registry, log: log, batchSize: batchSize}
}

// ReindexAll upserts every row of the type registered under index and returns how many
// documents were written. Per-document failures do not stop the scan; they are combined into
// the returned error.
func (r *Reindexer) ReindexAll(ctx context.Context, index string) (int, error) {
	m, ok := r.registry.LookupIndex(index)
	if !ok {
		return 0, fmt.Errorf("reindex: %q is not a searchable index", index)
	}
	if !r.client.Enabled() {
		r.log.Info("search disabled, skipping reindex", zap.String("index", index))
		return 0, nil
	}

	written := 0
	var errs error
	rows := reflect.New(reflect.SliceOf(reflect.PointerTo(m.ModelType())))
	res := r.db.WithContext(ctx).
		Model(reflect.New(m.ModelType()).Interface()).
		FindInBatches(rows.Interface(), r.batchSize, func(tx *gorm.DB, batch int) error {
			items := rows.Elem()
			for i := 0; i < items.Len(); i++ {
				e := items.Index(i).Interface()
				id, ok := m.ID(e)
				if !ok {
					continue
				}
				if err := r.client.Upsert(ctx, m.Index, id, m.Project(e)); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s/%s: %w", m.Index, id, err))
					continue
				}
				written++
			}
			r.log.Debug("reindex batch done", zap.String("index", index), zap.Int("batch", batch), zap.Int("rows", items.Len()))
			return ctx.Err()
		})
	if res.Error != nil {
		return written, multierr.Append(errs, res.Error)
	}
	r.log.Info("reindex finished", zap.String("index", index), zap.Int("documents", written), zap.Int("failed", len(multierr.Errors(errs))))
	return written, errs
}

// ReindexEverything runs ReindexAll for each registered index.
func (r *Reindexer) ReindexEverything(ctx context.Context) (int, error) {
	total := 0
	var errs error
	for _, index := range r.registry.Indexes() {
		n, err := r.ReindexAll(ctx, index)
		total += n
		errs = multierr.Append(errs, err)
	}
	return total, errs
}
