package indexer

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
)

type job struct {
	mut   Mutation
	enqAt time.Time
}

// AsyncDispatcher 异步索引写入：按文档 key 哈希到固定 worker，保证同一文档按提交完成顺序落地。
type AsyncDispatcher struct {
	ix        *Indexer
	mu        sync.Mutex
	shards    []chan job
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopped   bool
	metricsCh chan time.Duration
}

// NewAsyncDispatcher creates workers queues of queueSize each. Call Start before the first
// commit and Stop on shutdown.
func NewAsyncDispatcher(ix *Indexer, workers, queueSize int) *AsyncDispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	d := &AsyncDispatcher{ix: ix, shards: make([]chan job, workers), metricsCh: make(chan time.Duration, 65536)}
	for i := range d.shards {
		d.shards[i] = make(chan job, queueSize)
	}
	return d
}

// UseAsync switches ix to a started AsyncDispatcher and returns it for shutdown.
func (ix *Indexer) UseAsync(workers, queueSize int) *AsyncDispatcher {
	d := NewAsyncDispatcher(ix, workers, queueSize)
	ix.dispatch = d
	d.Start()
	return d
}

func (d *AsyncDispatcher) Start() {
	for _, ch := range d.shards {
		d.wg.Add(1)
		go d.loop(ch)
	}
}

func (d *AsyncDispatcher) loop(ch <-chan job) {
	defer d.wg.Done()
	for j := range ch {
		// the request context is gone by now
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.ix.apply(ctx, j.mut)
		cancel()
		select {
		case d.metricsCh <- time.Since(j.enqAt):
		default:
		}
	}
}

// Dispatch enqueues one commit's mutations. Enqueueing is serialized so that, per document,
// queue order is the order in which after-commit callbacks reached Dispatch; two racing commits
// of one document land in the order of their callbacks, not of their commits. A full queue
// blocks the caller.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, muts []Mutation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.ix.log.Warn("index dispatcher stopped, applying inline", zap.Int("mutations", len(muts)))
		d.ix.Apply(ctx, muts)
		return
	}
	now := time.Now()
	for _, m := range muts {
		d.shards[d.shardOf(m)] <- job{mut: m, enqAt: now}
	}
}

func (d *AsyncDispatcher) shardOf(m Mutation) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.key()))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Stop closes the queues and waits for workers to drain them or for ctx to expire.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		for _, ch := range d.shards {
			close(ch)
		}
		d.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics 返回入队到落地的耗时（每处理一条发送一次）
func (d *AsyncDispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// QueueLen 当前排队总数（采样值）
func (d *AsyncDispatcher) QueueLen() int {
	n := 0
	for _, ch := range d.shards {
		n += len(ch)
	}
	return n
}
