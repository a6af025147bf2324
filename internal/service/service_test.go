package service

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/microblog/internal/cache"
	"github.com/d60-Lab/microblog/internal/indexer"
	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
	"github.com/d60-Lab/microblog/internal/search"
	"github.com/d60-Lab/microblog/internal/search/memsearch"
	"github.com/d60-Lab/microblog/internal/store"
)

type env struct {
	db     *gorm.DB
	engine *memsearch.Engine
	client *search.Client
	cache  *cache.FollowingCache

	users    UserService
	posts    PostService
	rels     RelationshipService
	feed     FeedService
	search   SearchService
	postRepo repository.PostRepository
}

type envOpts struct {
	noSearch  bool
	withCache bool
}

func newEnv(t *testing.T, opts envOpts) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Follow{}))

	e := &env{db: db}
	if !opts.noSearch {
		e.engine = memsearch.New()
		e.client = search.NewClient(e.engine, nil)
	} else {
		e.client = search.NewClient(nil, nil)
	}
	reg := search.NewRegistry().MustRegister(&model.Post{}, "body")
	hooks := []store.CommitHook{indexer.New(e.client, reg, nil)}

	var following FollowingSource
	if opts.withCache {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		e.cache = cache.NewFollowingCache(rdb, db, 0, nil)
		hooks = append(hooks, e.cache)
		following = e.cache
	}
	s := store.New(db, hooks...)

	userRepo := repository.NewUserRepository(s)
	e.postRepo = repository.NewPostRepository(s)
	e.users = NewUserService(userRepo)
	e.posts = NewPostService(e.postRepo, 10)
	e.rels = NewRelationshipService(repository.NewFollowRepository(s), userRepo)
	e.feed = NewFeedService(e.postRepo, following, 10, nil)
	e.search = NewSearchService(e.client, e.postRepo, 10)
	return e
}

func (e *env) user(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, e.db.Create(u).Error)
	return u
}
