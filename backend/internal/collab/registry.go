package collab

import (
	"context"
	"log"
	"sync"
	"time"

	"syncServer/backend/internal/store"
)

// Options Registry 与其下 session 的运行参数
type Options struct {
	RingCap       int           // 每文档内存保留的已提交操作条数
	SnapshotEvery uint64        // 每 N 次提交自动落快照，0 关闭
	IdleTimeout   time.Duration // 无订阅者多久后可被驱逐
	SweepInterval time.Duration // 驱逐巡检周期
}

func (o *Options) withDefaults() {
	if o.RingCap <= 0 {
		o.RingCap = 1024
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
}

type sessionEntry struct {
	// loadMu 串行化同一文档的物化：并发首访只有一个加载者，
	// 其余等它完成后直接复用
	loadMu      sync.Mutex
	sess        *DocSession
	subscribers int
	idleSince   time.Time
}

// Registry 进程级 docID -> 活跃 session 映射：惰性创建、单实例保证、闲置驱逐。
// 驱逐是安全的——快照和日志都在外部存储里，下次访问重新物化即可。
// r.mu 只保护 map 本身；物化（快照读 + 日志重放，可能是慢 IO）
// 在每文档的 loadMu 下进行，不同文档互不阻塞。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	st       store.Store
	events   *EventDispatcher
	opts     Options
}

func NewRegistry(st store.Store, events *EventDispatcher, opts Options) *Registry {
	opts.withDefaults()
	return &Registry{
		sessions: make(map[string]*sessionEntry),
		st:       st,
		events:   events,
		opts:     opts,
	}
}

// Create 新建文档（revision 0 快照），已存在返回 store.ErrDocumentExists。
// 并发 Create 的单赢靠存储层 (docID, revision 0) 唯一键兜底
func (r *Registry) Create(ctx context.Context, docID string, initialContent string) (*DocSession, error) {
	if err := r.st.CreateDocument(ctx, docID, initialContent); err != nil {
		return nil, err
	}
	return r.Get(ctx, docID)
}

// Get 取文档的活跃 session，没有就从存储物化一个。
// 并发对同一个未见过的 id 调用不会竞出两个实例（entry 占位 + loadMu）。
// 文档不存在返回 store.ErrDocumentNotFound。
func (r *Registry) Get(ctx context.Context, docID string) (*DocSession, error) {
	r.mu.Lock()
	e, ok := r.sessions[docID]
	if !ok {
		e = &sessionEntry{idleSince: time.Now()}
		r.sessions[docID] = e
	}
	r.mu.Unlock()

	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.sess != nil && !e.sess.isClosed() {
		return e.sess, nil
	}
	// 首次物化，或被拆除的 session 原地换新
	sess, err := loadSession(ctx, r.st, r.events, docID, r.opts.RingCap, r.opts.SnapshotEvery)
	if err != nil {
		// 物化失败的占位摘掉，别让后续访问撞上一个空 entry
		r.mu.Lock()
		if r.sessions[docID] == e {
			delete(r.sessions, docID)
		}
		r.mu.Unlock()
		return nil, err
	}
	// 写 e.sess 时两把锁都持有：sweep 只拿 r.mu 也能安全读到
	r.mu.Lock()
	e.sess = sess
	r.mu.Unlock()
	return sess, nil
}

// Ensure 存在即取、不存在即建（REST 的 ensure 语义）
func (r *Registry) Ensure(ctx context.Context, docID string, initialContent string) (*DocSession, error) {
	sess, err := r.Create(ctx, docID, initialContent)
	if err == store.ErrDocumentExists {
		return r.Get(ctx, docID)
	}
	return sess, err
}

// Retain 订阅者计数 +1，阻止闲置驱逐
func (r *Registry) Retain(docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[docID]; ok {
		e.subscribers++
	}
}

// Release 订阅者计数 -1，归零开始计闲置时间
func (r *Registry) Release(docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[docID]; ok {
		if e.subscribers > 0 {
			e.subscribers--
		}
		if e.subscribers == 0 {
			e.idleSince = time.Now()
		}
	}
}

// StartSweeper 后台巡检闲置 session，ctx 结束即停
func (r *Registry) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.sweep(now)
			}
		}
	}()
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var evict []*sessionEntry
	for docID, e := range r.sessions {
		// sess 为 nil 说明还在物化中，不碰
		if e.sess != nil && e.subscribers == 0 && now.Sub(e.idleSince) >= r.opts.IdleTimeout {
			evict = append(evict, e)
			delete(r.sessions, docID)
		}
	}
	r.mu.Unlock()

	// 驱逐前落一份快照，重建时少回放日志（锁外做，快照可能是慢 IO）
	for _, e := range evict {
		if rev, err := e.sess.SaveSnapshot(context.Background()); err != nil {
			log.Printf("evict snapshot doc=%s rev=%d: %v", e.sess.DocID(), rev, err)
		} else {
			log.Printf("evicted idle session doc=%s rev=%d", e.sess.DocID(), rev)
		}
	}
}
