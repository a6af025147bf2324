// Package search is the full-text side of the system: a registry of searchable entity types
// and a client over a pluggable document engine. A Client without an engine is disabled and
// answers every call with a no-op or an empty result.
package search

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/microblog/internal/search/elastic"
)

// Engine is a document store addressed by (index, id). Upsert replaces the whole document;
// Delete of an absent id must succeed.
type Engine interface {
	Upsert(ctx context.Context, index, id string, fields map[string]any) error
	Delete(ctx context.Context, index, id string) error
	Query(ctx context.Context, index, text string, from, size int) (ids []string, total int64, err error)
}

var tracer = otel.Tracer("github.com/d60-Lab/microblog/internal/search")

// Client is safe for concurrent use.
type Client struct {
	engine Engine
	log    *zap.Logger
}

// NewClient wraps engine. A nil engine yields a disabled client.
func NewClient(engine Engine, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{engine: engine, log: log}
}

// Open connects to the Elasticsearch endpoint at url. An empty url, or a backend that cannot
// be reached at start-up, yields a disabled client rather than an error.
func Open(ctx context.Context, url string, log *zap.Logger) *Client {
	if url == "" {
		return NewClient(nil, log)
	}
	es, err := elastic.New(ctx, url)
	if err != nil {
		if log != nil {
			log.Warn("search backend unavailable, search disabled", zap.String("url", url), zap.Error(err))
		}
		return NewClient(nil, log)
	}
	return NewClient(es, log)
}

func (c *Client) Enabled() bool { return c != nil && c.engine != nil }

func (c *Client) Upsert(ctx context.Context, index, id string, fields map[string]any) error {
	if !c.Enabled() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "search.upsert", trace.WithAttributes(
		attribute.String("search.index", index), attribute.String("search.id", id)))
	defer span.End()

	err := c.engine.Upsert(ctx, index, id, fields)
	record(span, err)
	return err
}

func (c *Client) Delete(ctx context.Context, index, id string) error {
	if !c.Enabled() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "search.delete", trace.WithAttributes(
		attribute.String("search.index", index), attribute.String("search.id", id)))
	defer span.End()

	err := c.engine.Delete(ctx, index, id)
	record(span, err)
	return err
}

// Query returns the ids on the given 1-based page, ranked by relevance, and the total hit
// count. Backend failures are logged and reported as no results.
func (c *Client) Query(ctx context.Context, index, text string, page, pageSize int) ([]string, int64) {
	if !c.Enabled() || pageSize <= 0 {
		return nil, 0
	}
	if page < 1 {
		page = 1
	}
	from := (page - 1) * pageSize

	ctx, span := tracer.Start(ctx, "search.query", trace.WithAttributes(
		attribute.String("search.index", index), attribute.Int("search.from", from), attribute.Int("search.size", pageSize)))
	defer span.End()

	ids, total, err := c.engine.Query(ctx, index, text, from, pageSize)
	record(span, err)
	if err != nil {
		c.log.Error("search query failed", zap.String("index", index), zap.String("text", text), zap.Error(err))
		return nil, 0
	}
	if len(ids) > pageSize {
		ids = ids[:pageSize]
	}
	return ids, total
}

func record(span trace.Span, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
