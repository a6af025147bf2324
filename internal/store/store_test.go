package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/microblog/internal/model"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Follow{}))
	return db
}

// recorder keeps what each hook phase observed.
type recorder struct {
	before []ChangeSet
	after  []ChangeSet
	fail   error
}

func (r *recorder) BeforeCommit(_ context.Context, cs ChangeSet) (AfterCommit, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	r.before = append(r.before, cs)
	return func(context.Context) { r.after = append(r.after, cs) }, nil
}

func TestTransactCommitRunsHooks(t *testing.T) {
	db := setupDB(t)
	rec := &recorder{}
	s := New(db, rec)
	ctx := context.Background()

	u := &model.User{Username: "john", Email: "john@example.com"}
	p := &model.Post{Body: "hi", Timestamp: time.Now()}
	err := s.Transact(ctx, func(uow *UnitOfWork) error {
		if err := uow.Insert(u); err != nil {
			return err
		}
		p.UserID = u.ID
		return uow.Insert(p)
	})
	require.NoError(t, err)

	require.Len(t, rec.before, 1)
	require.Len(t, rec.after, 1)
	assert.Len(t, rec.after[0].New, 2)
	assert.Empty(t, rec.after[0].Dirty)
	assert.Empty(t, rec.after[0].Deleted)
	assert.NotZero(t, p.ID)
}

func TestTransactRollbackSkipsAfterCommit(t *testing.T) {
	db := setupDB(t)
	rec := &recorder{}
	s := New(db, rec)
	boom := errors.New("boom")

	err := s.Transact(context.Background(), func(uow *UnitOfWork) error {
		if err := uow.Insert(&model.User{Username: "john", Email: "john@example.com"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, rec.before)
	assert.Empty(t, rec.after)

	var n int64
	require.NoError(t, db.Model(&model.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestBeforeCommitErrorRollsBack(t *testing.T) {
	db := setupDB(t)
	hookErr := errors.New("hook refused")
	s := New(db, &recorder{fail: hookErr})

	err := s.Transact(context.Background(), func(uow *UnitOfWork) error {
		return uow.Insert(&model.User{Username: "john", Email: "john@example.com"})
	})
	require.ErrorIs(t, err, hookErr)

	var n int64
	require.NoError(t, db.Model(&model.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUnitOfWorkCollapsesMutations(t *testing.T) {
	db := setupDB(t)
	rec := &recorder{}
	s := New(db, rec)
	ctx := context.Background()

	john := &model.User{Username: "john", Email: "john@example.com"}
	susan := &model.User{Username: "susan", Email: "susan@example.com"}
	require.NoError(t, s.Transact(ctx, func(uow *UnitOfWork) error {
		if err := uow.Insert(john); err != nil {
			return err
		}
		return uow.Insert(susan)
	}))

	require.NoError(t, s.Transact(ctx, func(uow *UnitOfWork) error {
		// new then updated: stays new
		mary := &model.User{Username: "mary", Email: "mary@example.com"}
		if err := uow.Insert(mary); err != nil {
			return err
		}
		mary.AboutMe = "hello"
		if err := uow.Update(mary); err != nil {
			return err
		}
		// new then deleted: never visible
		david := &model.User{Username: "david", Email: "david@example.com"}
		if err := uow.Insert(david); err != nil {
			return err
		}
		if err := uow.Delete(david); err != nil {
			return err
		}
		// updated then deleted: deleted
		john.AboutMe = "bye"
		if err := uow.Update(john); err != nil {
			return err
		}
		if err := uow.Delete(john); err != nil {
			return err
		}
		// plain update
		susan.AboutMe = "hi"
		return uow.Update(susan)
	}))

	require.Len(t, rec.after, 2)
	cs := rec.after[1]
	require.Len(t, cs.New, 1)
	assert.Equal(t, "mary", cs.New[0].(*model.User).Username)
	require.Len(t, cs.Dirty, 1)
	assert.Equal(t, "susan", cs.Dirty[0].(*model.User).Username)
	require.Len(t, cs.Deleted, 1)
	assert.Equal(t, "john", cs.Deleted[0].(*model.User).Username)
}

func TestNoHooksForEmptyUnitOfWork(t *testing.T) {
	db := setupDB(t)
	rec := &recorder{}
	s := New(db, rec)

	require.NoError(t, s.Transact(context.Background(), func(uow *UnitOfWork) error {
		var n int64
		return uow.Tx().Model(&model.User{}).Count(&n).Error
	}))
	assert.Empty(t, rec.before)
}

func TestInsertWithClausesAndCompositeKey(t *testing.T) {
	db := setupDB(t)
	s := New(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Transact(ctx, func(uow *UnitOfWork) error {
			return uow.Insert(&model.Follow{FollowerID: 1, FollowedID: 2}, clause.OnConflict{DoNothing: true})
		}))
	}
	var n int64
	require.NoError(t, db.Model(&model.Follow{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestSkippedInsertIsNotTracked(t *testing.T) {
	db := setupDB(t)
	rec := &recorder{}
	s := New(db, rec)
	ctx := context.Background()

	u := &model.User{Username: "john", Email: "john@example.com"}
	require.NoError(t, db.Create(u).Error)
	p := &model.Post{Body: "stored", Timestamp: time.Now(), UserID: u.ID}
	require.NoError(t, db.Create(p).Error)

	dup := &model.Post{ID: p.ID, Body: "never written", Timestamp: time.Now(), UserID: u.ID}
	require.NoError(t, s.Transact(ctx, func(uow *UnitOfWork) error {
		return uow.Insert(dup, clause.OnConflict{DoNothing: true})
	}))
	assert.Empty(t, rec.before, "nothing written, nothing to observe")

	var got model.Post
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, "stored", got.Body)

	require.NoError(t, s.Transact(ctx, func(uow *UnitOfWork) error {
		return uow.Insert(&model.Follow{FollowerID: 1, FollowedID: 2}, clause.OnConflict{DoNothing: true})
	}))
	require.Len(t, rec.after, 1)
	assert.Len(t, rec.after[0].New, 1)
}

func TestRejectsNonPointer(t *testing.T) {
	s := New(setupDB(t))
	err := s.Transact(context.Background(), func(uow *UnitOfWork) error {
		return uow.Insert(model.User{Username: "x"})
	})
	assert.ErrorIs(t, err, ErrNotPointer)
}
