package search

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm/schema"
)

// Mapping describes how one entity type is mirrored into the index.
type Mapping struct {
	Index  string
	Fields []string

	sch    *schema.Schema
	fields []*schema.Field
}

// ModelType is the struct type the mapping was registered for.
func (m *Mapping) ModelType() reflect.Type { return m.sch.ModelType }

// ID returns the entity's document id. ok is false when the primary key is still zero.
func (m *Mapping) ID(entity any) (string, bool) {
	pk := m.sch.PrioritizedPrimaryField
	v, zero := pk.ValueOf(context.Background(), reflect.ValueOf(entity))
	if zero {
		return "", false
	}
	return fmt.Sprint(v), true
}

// Project copies the registered fields out of entity. Values are read eagerly so the document
// stays valid after the entity is detached or deleted.
func (m *Mapping) Project(entity any) map[string]any {
	rv := reflect.ValueOf(entity)
	doc := make(map[string]any, len(m.fields))
	for i, f := range m.fields {
		v, _ := f.ValueOf(context.Background(), rv)
		doc[m.Fields[i]] = v
	}
	return doc
}

// Registry declares which entity types are searchable. Types never registered are simply not
// found by Lookup.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Mapping
	byIndex map[string]*Mapping
	schemas *sync.Map
}

func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*Mapping),
		byIndex: make(map[string]*Mapping),
		schemas: &sync.Map{},
	}
}

// Register makes model's type searchable with the given fields, named by Go field name or
// column name. The index is the lowercased type name, e.g. Post -> "post".
func (r *Registry) Register(model any, fields ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("search: no fields to index for %T", model)
	}
	sch, err := schema.Parse(model, r.schemas, schema.NamingStrategy{})
	if err != nil {
		return fmt.Errorf("search: parse %T: %w", model, err)
	}
	if sch.PrioritizedPrimaryField == nil {
		return fmt.Errorf("search: %s needs a single primary key", sch.Name)
	}

	m := &Mapping{Index: strings.ToLower(sch.Name), Fields: fields, sch: sch}
	for _, name := range fields {
		f := sch.LookUpField(name)
		if f == nil {
			return fmt.Errorf("search: %s has no field %q", sch.Name, name)
		}
		m.fields = append(m.fields, f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byIndex[m.Index]; dup {
		return fmt.Errorf("search: index %q already registered", m.Index)
	}
	r.byType[sch.ModelType] = m
	r.byIndex[m.Index] = m
	return nil
}

// MustRegister is Register for package-level wiring, panicking on a bad declaration.
func (r *Registry) MustRegister(model any, fields ...string) *Registry {
	if err := r.Register(model, fields...); err != nil {
		panic(err)
	}
	return r
}

// Lookup finds the mapping for entity's type.
func (r *Registry) Lookup(entity any) (*Mapping, bool) {
	t := reflect.TypeOf(entity)
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byType[t]
	return m, ok
}

func (r *Registry) LookupIndex(index string) (*Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byIndex[index]
	return m, ok
}

// Indexes lists registered index names, sorted.
func (r *Registry) Indexes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]string, 0, len(r.byIndex))
	for name := range r.byIndex {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}
