// Package elastic implements the search engine on Elasticsearch through olivere/elastic.
package elastic

import (
	"context"
	"fmt"

	es "github.com/olivere/elastic/v7"
)

// Engine encapsulates the elastic client. Indices are created on first write by the
// cluster's auto_create_index default.
type Engine struct {
	client *es.Client
}

// New connects to url and checks the node answers. Sniffing is off: url is usually a load
// balancer or a single container.
func New(ctx context.Context, url string, opts ...es.ClientOptionFunc) (*Engine, error) {
	opts = append([]es.ClientOptionFunc{
		es.SetURL(url),
		es.SetSniff(false),
	}, opts...)
	client, err := es.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("elastic: connect %s: %w", url, err)
	}
	if _, _, err := client.Ping(url).Do(ctx); err != nil {
		return nil, fmt.Errorf("elastic: ping %s: %w", url, err)
	}
	return &Engine{client: client}, nil
}

// Upsert indexes the full document, replacing any previous version.
func (e *Engine) Upsert(ctx context.Context, index, id string, fields map[string]any) error {
	_, err := e.client.Index().Index(index).Id(id).BodyJson(fields).Do(ctx)
	return err
}

// Delete removes the document; a missing document or index is not an error.
func (e *Engine) Delete(ctx context.Context, index, id string) error {
	_, err := e.client.Delete().Index(index).Id(id).Do(ctx)
	if err != nil && !es.IsNotFound(err) {
		return err
	}
	return nil
}

// Query runs a multi_match over every field.
func (e *Engine) Query(ctx context.Context, index, text string, from, size int) ([]string, int64, error) {
	res, err := e.client.Search().
		Index(index).
		Query(es.NewMultiMatchQuery(text, "*")).
		From(from).
		Size(size).
		Do(ctx)
	if err != nil {
		if es.IsNotFound(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	if res.Hits == nil {
		return nil, 0, nil
	}
	ids := make([]string, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		ids = append(ids, h.Id)
	}
	var total int64
	if res.Hits.TotalHits != nil {
		total = res.Hits.TotalHits.Value
	}
	return ids, total, nil
}
