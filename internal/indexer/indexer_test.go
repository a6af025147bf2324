package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/search"
	"github.com/d60-Lab/microblog/internal/search/memsearch"
	"github.com/d60-Lab/microblog/internal/store"
)

func setupDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Follow{}))
	return db
}

func registry(t testing.TB) *search.Registry {
	t.Helper()
	r := search.NewRegistry()
	require.NoError(t, r.Register(&model.Post{}, "body"))
	return r
}

type fixture struct {
	db     *gorm.DB
	store  *store.Store
	engine *memsearch.Engine
	client *search.Client
	ix     *Indexer
	author *model.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := setupDB(t)
	engine := memsearch.New()
	client := search.NewClient(engine, nil)
	ix := New(client, registry(t), nil, opts...)
	f := &fixture{db: db, store: store.New(db, ix), engine: engine, client: client, ix: ix}

	f.author = &model.User{Username: "john", Email: "john@example.com"}
	require.NoError(t, db.Create(f.author).Error)
	return f
}

func (f *fixture) insertPosts(t *testing.T, bodies ...string) []*model.Post {
	t.Helper()
	var posts []*model.Post
	require.NoError(t, f.store.Transact(context.Background(), func(uow *store.UnitOfWork) error {
		for _, b := range bodies {
			p := &model.Post{Body: b, Timestamp: time.Now(), UserID: f.author.ID}
			if err := uow.Insert(p); err != nil {
				return err
			}
			posts = append(posts, p)
		}
		return nil
	}))
	return posts
}

func TestCommitIndexesEveryInsertedPost(t *testing.T) {
	f := newFixture(t)
	f.insertPosts(t, "the galaxy one", "the galaxy two", "the galaxy three")

	ids, total := f.client.Query(context.Background(), "post", "galaxy", 1, 10)
	assert.Equal(t, int64(3), total)
	assert.Len(t, ids, 3)
}

func TestRollbackIndexesNothing(t *testing.T) {
	f := newFixture(t)
	err := f.store.Transact(context.Background(), func(uow *store.UnitOfWork) error {
		for i := 0; i < 3; i++ {
			if err := uow.Insert(&model.Post{Body: "doomed", Timestamp: time.Now(), UserID: f.author.ID}); err != nil {
				return err
			}
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Zero(t, f.engine.Count("post"))
}

func TestUpdateReplacesAndDeleteRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posts := f.insertPosts(t, "original words", "keep me")

	posts[0].Body = "edited words"
	require.NoError(t, f.store.Transact(ctx, func(uow *store.UnitOfWork) error {
		if err := uow.Update(posts[0]); err != nil {
			return err
		}
		return uow.Delete(posts[1])
	}))

	doc, ok := f.engine.Get("post", "1")
	require.True(t, ok)
	assert.Equal(t, "edited words", doc["body"])
	_, ok = f.engine.Get("post", "2")
	assert.False(t, ok)

	ids, _ := f.client.Query(ctx, "post", "original", 1, 10)
	assert.Empty(t, ids)
}

func TestUpsertAndDeleteAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posts := f.insertPosts(t, "same words")
	before, _ := f.engine.Get("post", "1")

	// replaying the same snapshot twice leaves the same observable state
	muts := []Mutation{{Index: "post", ID: "1", Fields: map[string]any{"body": posts[0].Body}}}
	f.ix.Apply(ctx, muts)
	f.ix.Apply(ctx, muts)
	after, _ := f.engine.Get("post", "1")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.engine.Count("post"))

	del := []Mutation{{Index: "post", ID: "1", Delete: true}}
	f.ix.Apply(ctx, del)
	f.ix.Apply(ctx, del)
	f.ix.Apply(ctx, []Mutation{{Index: "post", ID: "999", Delete: true}})
	assert.Zero(t, f.engine.Count("post"))
}

func TestUnregisteredEntitiesAreIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Transact(context.Background(), func(uow *store.UnitOfWork) error {
		if err := uow.Insert(&model.User{Username: "susan", Email: "susan@example.com"}); err != nil {
			return err
		}
		return uow.Insert(&model.Follow{FollowerID: 1, FollowedID: 2})
	}))
	assert.Zero(t, f.engine.Count("post"))
	assert.Zero(t, f.engine.Count("user"))
}

func TestDisabledSearchLeavesStoreUntouched(t *testing.T) {
	db := setupDB(t)
	ix := New(search.NewClient(nil, nil), registry(t), nil)
	s := store.New(db, ix)
	ctx := context.Background()

	u := &model.User{Username: "john", Email: "john@example.com"}
	p := &model.Post{Body: "hello", Timestamp: time.Now()}
	require.NoError(t, s.Transact(ctx, func(uow *store.UnitOfWork) error {
		if err := uow.Insert(u); err != nil {
			return err
		}
		p.UserID = u.ID
		return uow.Insert(p)
	}))
	p.Body = "changed"
	require.NoError(t, s.Transact(ctx, func(uow *store.UnitOfWork) error { return uow.Update(p) }))

	var got model.Post
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, "changed", got.Body)

	require.NoError(t, s.Transact(ctx, func(uow *store.UnitOfWork) error { return uow.Delete(p) }))
	assert.ErrorIs(t, db.First(&got, p.ID).Error, gorm.ErrRecordNotFound)
}

// flakyEngine fails the first n calls.
type flakyEngine struct {
	*memsearch.Engine
	mu    sync.Mutex
	fails int
	calls int
}

func (e *flakyEngine) Upsert(ctx context.Context, index, id string, fields map[string]any) error {
	e.mu.Lock()
	e.calls++
	fail := e.calls <= e.fails
	e.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return e.Engine.Upsert(ctx, index, id, fields)
}

func TestBackendFailureDoesNotFailCommit(t *testing.T) {
	db := setupDB(t)
	core, logs := observer.New(zap.WarnLevel)
	engine := &flakyEngine{Engine: memsearch.New(), fails: 100}
	var reported []error
	ix := New(search.NewClient(engine, nil), registry(t), zap.New(core),
		WithReporter(func(err error) { reported = append(reported, err) }))
	s := store.New(db, ix)

	u := &model.User{Username: "john", Email: "john@example.com"}
	require.NoError(t, db.Create(u).Error)
	err := s.Transact(context.Background(), func(uow *store.UnitOfWork) error {
		return uow.Insert(&model.Post{Body: "hello", Timestamp: time.Now(), UserID: u.ID})
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&model.Post{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "post is committed")
	assert.Zero(t, engine.Count("post"), "document is stale")
	assert.Equal(t, 1, logs.FilterMessage("index sync failed, document left stale").Len())
	// error-level entries are forwarded to sentry by the logger hook, so a failure must not
	// produce one on top of the explicit report
	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len())
	require.Len(t, reported, 1)
	assert.EqualError(t, reported[0], "connection reset")
	assert.Equal(t, 1, engine.calls, "no retry by default")
}

func TestBoundedRetry(t *testing.T) {
	db := setupDB(t)
	engine := &flakyEngine{Engine: memsearch.New(), fails: 1}
	ix := New(search.NewClient(engine, nil), registry(t), nil, WithRetries(2))
	s := store.New(db, ix)

	require.NoError(t, s.Transact(context.Background(), func(uow *store.UnitOfWork) error {
		return uow.Insert(&model.Post{Body: "hello", Timestamp: time.Now(), UserID: 1})
	}))
	assert.Equal(t, 2, engine.calls)
	assert.Equal(t, 1, engine.Count("post"))
}
