// Package memsearch is an in-process search engine for tests and single-node development. It
// ranks documents by how often the query's terms occur in any of their string fields.
package memsearch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

type Engine struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]any // index -> id -> fields
}

func New() *Engine {
	return &Engine{docs: make(map[string]map[string]map[string]any)}
}

func (e *Engine) Upsert(_ context.Context, index, id string, fields map[string]any) error {
	doc := make(map[string]any, len(fields))
	for k, v := range fields {
		doc[k] = v
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.docs[index] == nil {
		e.docs[index] = make(map[string]map[string]any)
	}
	e.docs[index][id] = doc
	return nil
}

func (e *Engine) Delete(_ context.Context, index, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs[index], id)
	return nil
}

type hit struct {
	id    string
	score int
}

func (e *Engine) Query(_ context.Context, index, text string, from, size int) ([]string, int64, error) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil, 0, nil
	}

	e.mu.RLock()
	var hits []hit
	for id, doc := range e.docs[index] {
		if score := scoreDoc(doc, terms); score > 0 {
			hits = append(hits, hit{id: id, score: score})
		}
	}
	e.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})

	total := int64(len(hits))
	if from >= len(hits) {
		return nil, total, nil
	}
	end := from + size
	if end > len(hits) {
		end = len(hits)
	}
	ids := make([]string, 0, end-from)
	for _, h := range hits[from:end] {
		ids = append(ids, h.id)
	}
	return ids, total, nil
}

// Get returns a copy of the stored document.
func (e *Engine) Get(index, id string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[index][id]
	if !ok {
		return nil, false
	}
	dup := make(map[string]any, len(doc))
	for k, v := range doc {
		dup[k] = v
	}
	return dup, true
}

// Count is the number of documents in index.
func (e *Engine) Count(index string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs[index])
}

func scoreDoc(doc map[string]any, terms []string) int {
	score := 0
	for _, v := range doc {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		words := tokenize(s)
		for _, t := range terms {
			for _, w := range words {
				if w == t {
					score++
				}
			}
		}
	}
	return score
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
