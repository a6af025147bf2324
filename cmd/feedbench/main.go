package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/microblog/config"
	"github.com/d60-Lab/microblog/internal/indexer"
	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
	"github.com/d60-Lab/microblog/internal/search"
	"github.com/d60-Lab/microblog/internal/search/memsearch"
	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/internal/store"
	"github.com/d60-Lab/microblog/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// feedbench: N 个作者，读者关注全部作者；测量发帖事务（含索引同步）与关注流首页读取延迟。
// SEARCH_URL 为空时使用进程内索引；ASYNC=1 切换到异步索引派发。
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}

	N := envInt("N", 200)            // authors followed by the reader
	POSTS := envInt("POSTS", 2000)   // posts published in total
	READS := envInt("READS", 200)    // feed page reads
	WORKERS := envInt("WORKERS", 4)  // async index workers
	PAGE := envInt("PAGE", cfg.Feed.PostsPerPage)
	async := os.Getenv("ASYNC") == "1"

	client := search.Open(ctx, os.Getenv("SEARCH_URL"), nil)
	if !client.Enabled() {
		client = search.NewClient(memsearch.New(), nil)
	}
	ix := indexer.New(client, search.NewRegistry().MustRegister(&model.Post{}, "body"), nil)
	var dispatcher *indexer.AsyncDispatcher
	if async {
		dispatcher = ix.UseAsync(WORKERS, 4096)
	}
	s := store.New(db, ix)

	postRepo := repository.NewPostRepository(s)
	followRepo := repository.NewFollowRepository(s)
	posts := service.NewPostService(postRepo, PAGE)
	feed := service.NewFeedService(postRepo, nil, PAGE, nil)

	// clean tables for a reproducible run (ok for local bench)
	_ = db.Exec("DELETE FROM posts").Error
	_ = db.Exec("DELETE FROM followers").Error
	_ = db.Exec("DELETE FROM users").Error

	reader := model.User{Username: "reader", Email: "reader@example.com"}
	must(0, db.Create(&reader).Error)
	authors := make([]model.User, N)
	for i := range authors {
		authors[i] = model.User{Username: fmt.Sprintf("author%05d", i), Email: fmt.Sprintf("author%05d@example.com", i)}
	}
	must(0, db.CreateInBatches(&authors, 500).Error)
	for _, a := range authors {
		must(0, followRepo.Follow(ctx, reader.ID, a.ID))
	}

	pub := make([]time.Duration, 0, POSTS)
	for i := 0; i < POSTS; i++ {
		st := time.Now()
		must(posts.Publish(ctx, authors[i%N].ID, fmt.Sprintf("bench post number %d about galaxies", i)))
		pub = append(pub, time.Since(st))
	}

	var land []time.Duration
	if dispatcher != nil {
		must(0, dispatcher.Stop(ctx))
	drain:
		for len(land) < POSTS {
			select {
			case d := <-dispatcher.Metrics():
				land = append(land, d)
			default:
				break drain
			}
		}
	}

	reads := make([]time.Duration, 0, READS)
	for i := 0; i < READS; i++ {
		page := i%5 + 1
		st := time.Now()
		must(feed.Feed(ctx, reader.ID, page, PAGE))
		reads = append(reads, time.Since(st))
	}

	hits, total := client.Query(ctx, "post", "galaxies", 1, 10)

	fmt.Printf("N=%d POSTS=%d READS=%d PAGE=%d ASYNC=%v\n", N, POSTS, READS, PAGE, async)
	fmt.Printf("Publish tx latency: avg=%v p95=%v p99=%v\n", avg(pub), pct(pub, 0.95), pct(pub, 0.99))
	if async {
		fmt.Printf("Index landing (commit->indexed): samples=%d avg=%v p95=%v p99=%v\n", len(land), avg(land), pct(land, 0.95), pct(land, 0.99))
	}
	fmt.Printf("Feed read (pages 1-5): avg=%v p95=%v p99=%v\n", avg(reads), pct(reads, 0.95), pct(reads, 0.99))
	fmt.Printf("Search check: hits=%d total=%d\n", len(hits), total)
}
