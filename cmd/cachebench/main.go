package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/microblog/internal/cache"
	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/internal/store"
)

type request struct {
	reader uint
	page   int
	size   int
}

// cachebench: 关注流读取，对比「子查询取关注集合」与「Redis 缓存关注集合」
func main() {
	ctx := context.Background()

	// DATABASE_URL 指向 PostgreSQL；未设置时用临时 sqlite 文件
	var dialector gorm.Dialector
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(fmt.Sprintf("%s/cachebench-%d.db", os.TempDir(), time.Now().UnixNano()))
	}
	db := must(gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}))
	mustDo(db.Migrator().DropTable(&model.Follow{}, &model.Post{}, &model.User{}))
	mustDo(db.AutoMigrate(&model.User{}, &model.Post{}, &model.Follow{}))

	const (
		userCount    = 5000
		followsEach  = 1000
		postsPerUser = 4
	)

	fmt.Println("Setting up test data...")
	users := make([]model.User, userCount)
	for i := range users {
		users[i] = model.User{Username: fmt.Sprintf("user_%d", i), Email: fmt.Sprintf("user_%d@example.com", i)}
	}
	mustDo(db.CreateInBatches(&users, 1000).Error)

	// 3 readers with overlapping follow sets (50% overlap between neighbours)
	readers := []model.User{users[0], users[1], users[2]}
	var edges []model.Follow
	for r, reader := range readers {
		start := 3 + r*followsEach/2
		for i := 0; i < followsEach; i++ {
			edges = append(edges, model.Follow{FollowerID: reader.ID, FollowedID: users[(start+i)%userCount].ID})
		}
	}
	mustDo(db.CreateInBatches(&edges, 1000).Error)

	base := time.Now().UTC()
	posts := make([]model.Post, 0, userCount*postsPerUser)
	for i, u := range users {
		for j := 0; j < postsPerUser; j++ {
			posts = append(posts, model.Post{Body: fmt.Sprintf("post %d of %s", j, u.Username), UserID: u.ID, Timestamp: base.Add(-time.Duration(i*postsPerUser+j) * time.Second)})
		}
	}
	mustDo(db.CreateInBatches(&posts, 1000).Error)
	fmt.Println("Test data ready: 3 readers with overlapping follow sets")

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		mr := must(miniredis.Run())
		defer mr.Close()
		redisAddr = mr.Addr()
		fmt.Println("REDIS_ADDR not set, using in-process miniredis")
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	following := cache.NewFollowingCache(client, db, 10*time.Minute, nil)
	postRepo := repository.NewPostRepository(store.New(db, following))
	subQuery := service.NewFeedService(postRepo, nil, 25, nil)
	cached := service.NewFeedService(postRepo, following, 25, nil)

	reqs := makeRequests(readers, 3000)

	noCache := runScenario(ctx, reqs, false, subQuery, client)
	hitsBefore, loadsBefore := following.Counters()
	withCache := runScenario(ctx, reqs, true, cached, client)
	hits, loads := following.Counters()

	fmt.Printf("\nFeed read latency (%d req across 3 readers, %d users, %d posts)\n", len(reqs), userCount, len(posts))
	fmt.Printf("%-18s avg=%v p95=%v p99=%v\n", "Sub-query", avg(noCache.durations), pct(noCache.durations, 0.95), pct(noCache.durations, 0.99))
	fmt.Printf("%-18s avg=%v p95=%v p99=%v cache_hits=%d db_loads=%d cache_keys=%d mem=%s\n",
		"Following cache", avg(withCache.durations), pct(withCache.durations, 0.95), pct(withCache.durations, 0.99),
		hits-hitsBefore, loads-loadsBefore, withCache.cacheKeys, formatBytes(withCache.memoryBytes),
	)
}

type scenarioResult struct {
	durations   []time.Duration
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, reqs []request, warm bool, feed service.FeedService, client *redis.Client) scenarioResult {
	client.FlushAll(ctx)

	if warm {
		fmt.Print("  Warming cache...")
		for _, r := range reqs[:3] {
			must(feed.Feed(ctx, r.reader, r.page, r.size))
		}
		fmt.Println(" done")
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		must(feed.Feed(ctx, r.reader, r.page, r.size))
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	keys, _ := client.Keys(ctx, "*").Result()
	var memBytes int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		memBytes = parseRedisMemory(info)
	}
	return scenarioResult{durations: out, cacheKeys: len(keys), memoryBytes: memBytes}
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// makeRequests mixes readers; most reads hit page 1, the rest paginate deep.
func makeRequests(readers []model.User, n int) []request {
	sizes := []int{10, 25, 50}
	out := make([]request, n)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		page := 1
		if rnd.Float64() > 0.72 {
			page = 2 + rnd.Intn(40)
		}
		out[i] = request{reader: readers[i%len(readers)].ID, page: page, size: sizes[rnd.Intn(len(sizes))]}
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
