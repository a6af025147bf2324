// Package store wraps the primary gorm database with a unit of work whose commit lifecycle is
// observable through explicitly registered hooks.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

var ErrNotPointer = errors.New("store: entity must be a non-nil pointer to a struct")

// ChangeSet is the pending state of one unit of work, captured right before commit. The three
// slices are disjoint; each entity appears once, in its final state.
type ChangeSet struct {
	New     []any
	Dirty   []any
	Deleted []any
}

func (c ChangeSet) Empty() bool {
	return len(c.New) == 0 && len(c.Dirty) == 0 && len(c.Deleted) == 0
}

// AfterCommit runs once the transaction has committed. It is never called for a transaction
// that failed or rolled back.
type AfterCommit func(ctx context.Context)

// CommitHook observes the commit of every unit of work. BeforeCommit runs inside the
// transaction while all entities are still resolvable; returning an error rolls back.
// The returned AfterCommit (may be nil) carries whatever the hook captured.
type CommitHook interface {
	BeforeCommit(ctx context.Context, changes ChangeSet) (AfterCommit, error)
}

// CommitHookFunc adapts a function to CommitHook.
type CommitHookFunc func(ctx context.Context, changes ChangeSet) (AfterCommit, error)

func (f CommitHookFunc) BeforeCommit(ctx context.Context, changes ChangeSet) (AfterCommit, error) {
	return f(ctx, changes)
}

// Store 主存储：gorm 连接 + 提交钩子
type Store struct {
	db      *gorm.DB
	hooks   []CommitHook
	schemas *sync.Map
}

// New returns a Store whose transactions notify hooks in registration order.
func New(db *gorm.DB, hooks ...CommitHook) *Store {
	return &Store{db: db, hooks: hooks, schemas: &sync.Map{}}
}

// DB returns the underlying connection for reads outside a unit of work.
func (s *Store) DB() *gorm.DB { return s.db }

// Transact runs fn inside one database transaction. Hooks see the unit of work's change set
// after fn returns nil and before the commit; their AfterCommit callbacks run after the commit
// succeeded, in the caller's goroutine.
func (s *Store) Transact(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	var after []AfterCommit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow := &UnitOfWork{tx: tx, store: s, tracked: make(map[string]*tracked)}
		if err := fn(uow); err != nil {
			return err
		}
		changes := uow.changes()
		if changes.Empty() {
			return nil
		}
		for _, h := range s.hooks {
			cb, err := h.BeforeCommit(ctx, changes)
			if err != nil {
				return fmt.Errorf("before commit hook: %w", err)
			}
			if cb != nil {
				after = append(after, cb)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, cb := range after {
		cb(ctx)
	}
	return nil
}

type state int

const (
	stateGone state = iota
	stateNew
	stateDirty
	stateDeleted
)

type tracked struct {
	entity any
	state  state
}

// UnitOfWork records the entities written through it during one transaction. Several writes to
// the same entity collapse to its final state: insert+update stays new, update+delete becomes
// deleted, insert+delete disappears.
type UnitOfWork struct {
	tx      *gorm.DB
	store   *Store
	tracked map[string]*tracked
	order   []string
}

// Tx exposes the transaction for queries that need to see uncommitted writes.
func (u *UnitOfWork) Tx() *gorm.DB { return u.tx }

// Insert creates entity. Extra clauses (e.g. clause.OnConflict) are passed to gorm; an insert
// they turn into a no-op is not tracked.
func (u *UnitOfWork) Insert(entity any, clauses ...clause.Expression) error {
	if err := checkPointer(entity); err != nil {
		return err
	}
	tx := u.tx
	if len(clauses) > 0 {
		tx = tx.Clauses(clauses...)
	}
	res := tx.Create(entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// a conflict clause skipped the row; nothing was written to observe
		return nil
	}
	return u.track(entity, stateNew)
}

// Update saves every field of entity.
func (u *UnitOfWork) Update(entity any) error {
	if err := checkPointer(entity); err != nil {
		return err
	}
	if err := u.tx.Save(entity).Error; err != nil {
		return err
	}
	return u.track(entity, stateDirty)
}

// Delete removes entity by its primary key.
func (u *UnitOfWork) Delete(entity any) error {
	if err := checkPointer(entity); err != nil {
		return err
	}
	if err := u.tx.Delete(entity).Error; err != nil {
		return err
	}
	return u.track(entity, stateDeleted)
}

func (u *UnitOfWork) track(entity any, next state) error {
	key, err := u.store.identity(entity)
	if err != nil {
		return err
	}
	t, ok := u.tracked[key]
	if !ok {
		u.tracked[key] = &tracked{entity: entity, state: next}
		u.order = append(u.order, key)
		return nil
	}
	t.entity = entity
	switch {
	case t.state == stateNew && next == stateDirty:
		// still new
	case t.state == stateNew && next == stateDeleted:
		t.state = stateGone
	default:
		t.state = next
	}
	return nil
}

func (u *UnitOfWork) changes() ChangeSet {
	var cs ChangeSet
	for _, key := range u.order {
		t := u.tracked[key]
		switch t.state {
		case stateNew:
			cs.New = append(cs.New, t.entity)
		case stateDirty:
			cs.Dirty = append(cs.Dirty, t.entity)
		case stateDeleted:
			cs.Deleted = append(cs.Deleted, t.entity)
		}
	}
	return cs
}

// identity is "<table>:<pk>[,<pk>...]".
func (s *Store) identity(entity any) (string, error) {
	sch, err := schema.Parse(entity, s.schemas, s.db.NamingStrategy)
	if err != nil {
		return "", err
	}
	if len(sch.PrimaryFields) == 0 {
		return "", fmt.Errorf("store: %s has no primary key", sch.Name)
	}
	rv := reflect.ValueOf(entity)
	parts := make([]string, 0, len(sch.PrimaryFields))
	for _, f := range sch.PrimaryFields {
		v, _ := f.ValueOf(context.Background(), rv)
		parts = append(parts, fmt.Sprint(v))
	}
	return sch.Table + ":" + strings.Join(parts, ","), nil
}

func checkPointer(entity any) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotPointer
	}
	return nil
}
