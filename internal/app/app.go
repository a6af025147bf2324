// Package app wires configuration into the running object graph shared by the CLI commands.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/microblog/config"
	"github.com/d60-Lab/microblog/internal/api"
	"github.com/d60-Lab/microblog/internal/api/handler"
	"github.com/d60-Lab/microblog/internal/auth"
	"github.com/d60-Lab/microblog/internal/cache"
	"github.com/d60-Lab/microblog/internal/indexer"
	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
	"github.com/d60-Lab/microblog/internal/search"
	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/internal/store"
	"github.com/d60-Lab/microblog/pkg/database"
)

// NewRegistry lists every searchable type and the fields mirrored into its index.
func NewRegistry() *search.Registry {
	return search.NewRegistry().MustRegister(&model.Post{}, "body")
}

type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Search     *search.Client
	Registry   *search.Registry
	Indexer    *indexer.Indexer
	Dispatcher *indexer.AsyncDispatcher
	Redis      *redis.Client
	Following  *cache.FollowingCache
	Store      *store.Store
	Tokens     *auth.TokenService

	Users     service.UserService
	Posts     service.PostService
	Relations service.RelationshipService
	Feed      service.FeedService
	SearchSvc service.SearchService

	log *zap.Logger
}

// New opens the database and, when configured, the search backend and Redis. A search or
// Redis backend that cannot be reached degrades to disabled mode instead of failing.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db, Registry: NewRegistry(), log: log}

	a.Search = search.Open(ctx, cfg.Search.URL, log)
	a.Indexer = indexer.New(a.Search, a.Registry, log, indexer.WithRetries(cfg.Search.RetryAttempts))
	if cfg.Search.Async && a.Search.Enabled() {
		a.Dispatcher = a.Indexer.UseAsync(cfg.Search.Workers, cfg.Search.QueueSize)
	}
	hooks := []store.CommitHook{a.Indexer}

	var following service.FollowingSource
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, following cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rdb.Close()
		} else {
			a.Redis = rdb
			a.Following = cache.NewFollowingCache(rdb, db, cfg.Redis.TTL, log)
			hooks = append(hooks, a.Following)
			following = a.Following
		}
	}
	a.Store = store.New(db, hooks...)

	userRepo := repository.NewUserRepository(a.Store)
	postRepo := repository.NewPostRepository(a.Store)
	perPage := cfg.Feed.PostsPerPage
	a.Tokens = auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.ResetTTL)
	a.Users = service.NewUserService(userRepo)
	a.Posts = service.NewPostService(postRepo, perPage)
	a.Relations = service.NewRelationshipService(repository.NewFollowRepository(a.Store), userRepo)
	a.Feed = service.NewFeedService(postRepo, following, perPage, log)
	a.SearchSvc = service.NewSearchService(a.Search, postRepo, perPage)
	return a, nil
}

func (a *App) Router() *gin.Engine {
	h := handler.New(a.Users, a.Posts, a.Relations, a.Feed, a.SearchSvc, a.Tokens, a.log)
	return api.NewRouter(api.RouterConfig{
		ServiceName: a.Config.Tracing.ServiceName,
		RPS:         a.Config.RateLimit.RPS,
		Burst:       a.Config.RateLimit.Burst,
	}, h, a.Tokens, a.Users, a.log)
}

func (a *App) Reindexer(batchSize int) *indexer.Reindexer {
	return indexer.NewReindexer(a.DB, a.Search, a.Registry, a.log, batchSize)
}

// Close drains pending index writes before closing connections.
func (a *App) Close(ctx context.Context) error {
	var errs error
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Stop(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("drain index queue: %w", err))
		}
	}
	if a.Redis != nil {
		errs = multierr.Append(errs, a.Redis.Close())
	}
	return multierr.Append(errs, database.Close(a.DB))
}
