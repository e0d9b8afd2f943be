package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"syncServer/backend/internal/ot/delta"
	"syncServer/backend/internal/store"
)

var (
	// 客户端的 baseRevision 早于内存保留窗口，只能重拉快照再重提
	ErrStaleTooFar = errors.New("STALE_TOO_FAR")
	// 操作本身不合法（越界、引用未来版本），只回给提交方，绝不会提交
	ErrInvalidOperation = delta.ErrInvalidOperation
	// session 因日志冲突被拆除，调用方应丢弃句柄重新获取
	ErrSessionClosed = errors.New("SESSION_CLOSED")
)

// Snapshot 某一 revision 的物化状态，取出后不可变
type Snapshot struct {
	Content  string `json:"content"`
	Revision uint64 `json:"revision"`
}

// SubmittedOp 客户端提交的候选操作。
// BaseRevision 声明客户端基于哪个版本编出这个操作，是冲突检测的钥匙。
type SubmittedOp struct {
	BaseRevision uint64
	Originator   string // 连接标识，同位置并发插入用它的字典序定先后
	Ops          delta.Delta
}

// AppliedOp 已提交操作：payload 已变换到能在 Revision-1 上干净应用
type AppliedOp struct {
	OperationID string      `json:"operationId"`
	Revision    uint64      `json:"revision"`
	Originator  string      `json:"originator"`
	Ops         delta.Delta `json:"ops"`
	AppliedAt   time.Time   `json:"appliedAt"`
}

// DocSession 单个文档的内存权威：当前内容、版本号、串行化的提交通道。
// 同一文档同一时刻最多产出一条已提交操作（mu 就是那把每文档互斥锁），
// 不同文档之间互不阻塞。
type DocSession struct {
	docID  string
	st     store.Store
	events *EventDispatcher // 可为 nil（测试/未接 Kafka）

	mu       sync.Mutex
	revision uint64
	buf      Buffer
	// 近期已提交操作窗口，ops[i].Revision 严格递增。
	// transform 只查这个窗口；窗口装不下的历史就是保留地平线以外
	ops     []AppliedOp
	horizon uint64 // baseRevision < horizon 即 STALE_TOO_FAR
	closed  bool

	ringCap       int
	snapshotEvery uint64 // 每 N 次提交落一份快照，0 关闭
}

// loadSession 从持久层物化 session：最新快照 + 重放其后的日志（确定性重放）
func loadSession(ctx context.Context, st store.Store, events *EventDispatcher, docID string, ringCap int, snapshotEvery uint64) (*DocSession, error) {
	snap, err := st.LoadSnapshot(ctx, docID)
	if err != nil {
		return nil, err
	}
	s := &DocSession{
		docID:         docID,
		st:            st,
		events:        events,
		revision:      snap.Revision,
		buf:           NewPieceTable(snap.Content),
		horizon:       snap.Revision,
		ringCap:       ringCap,
		snapshotEvery: snapshotEvery,
	}
	tail, err := st.LoadOperationsSince(ctx, docID, snap.Revision)
	if err != nil {
		return nil, err
	}
	for _, rec := range tail {
		if rec.Revision != s.revision+1 {
			return nil, fmt.Errorf("revision gap in log for doc %s: have %d, next op is %d", docID, s.revision, rec.Revision)
		}
		if err := s.buf.Apply(rec.Ops); err != nil {
			return nil, fmt.Errorf("replay doc %s rev %d: %w", docID, rec.Revision, err)
		}
		s.revision = rec.Revision
		s.appendToWindow(AppliedOp{
			Revision:   rec.Revision,
			Originator: rec.Originator,
			Ops:        rec.Ops,
			AppliedAt:  rec.AppliedAt,
		})
	}
	return s, nil
}

func (s *DocSession) DocID() string { return s.docID }

// SnapshotNow 返回当前快照的不可变拷贝
func (s *DocSession) SnapshotNow() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Content: s.buf.String(), Revision: s.revision}
}

// Submit 提交一个候选操作：
//  1. baseRevision == 当前版本，没有并发历史，直接提交；
//  2. 否则把操作按 revision 顺序逐一 transform 过 (base, 当前] 的已提交历史；
//  3. 应用到内容缓冲，先持久化 append 再推进版本号；
//  4. 返回（可能被变换过的）已提交操作，提交方用它校正本地乐观状态，
//     其他订阅者收到的广播也是它。
//
// 整个 2-4 在每文档互斥锁内执行，并发 Submit 按到达顺序排队，
// 到达顺序就是全系统的规范顺序，tie-break 因此是确定的。
func (s *DocSession) Submit(ctx context.Context, sub SubmittedOp) (AppliedOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AppliedOp{}, ErrSessionClosed
	}
	if sub.BaseRevision > s.revision {
		return AppliedOp{}, fmt.Errorf("%w: baseRevision %d is ahead of current %d", ErrInvalidOperation, sub.BaseRevision, s.revision)
	}
	if sub.BaseRevision < s.horizon {
		return AppliedOp{}, fmt.Errorf("%w: baseRevision %d predates horizon %d", ErrStaleTooFar, sub.BaseRevision, s.horizon)
	}

	// 变换过所有错过的并发历史。
	// 同位置插入：originator 字典序小的排前面，所以字典序更小的一方拿优先权；
	// 同一 originator 连发（自己跟自己并发）时让先提交的在前。
	ops := sub.Ops
	for _, h := range s.ops {
		if h.Revision <= sub.BaseRevision {
			continue
		}
		ops = delta.Transform(ops, h.Ops, sub.Originator < h.Originator)
	}

	// 先校验可应用性（Buffer.Apply 是全有或全无），再写持久日志，
	// 日志成功后才动内存状态——观察者看不到半提交
	if need := delta.BaseLen(ops); need > s.buf.Len() {
		return AppliedOp{}, fmt.Errorf("%w: delta needs %d but document has %d", ErrInvalidOperation, need, s.buf.Len())
	}

	now := time.Now()
	rec := store.OperationRecord{
		DocID:      s.docID,
		Revision:   s.revision + 1,
		Originator: sub.Originator,
		Ops:        ops,
		AppliedAt:  now,
	}
	if err := s.st.AppendOperation(ctx, rec); err != nil {
		if errors.Is(err, store.ErrRevisionLogConflict) {
			// 进程内互斥下结构上不可能；出现即不变量被破坏，
			// 拆掉 session，下次访问从持久日志重建
			log.Printf("fatal: revision log conflict doc=%s rev=%d, tearing down session", s.docID, rec.Revision)
			s.closed = true
			return AppliedOp{}, fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		return AppliedOp{}, fmt.Errorf("append operation doc=%s rev=%d: %w", s.docID, rec.Revision, err)
	}

	if err := s.buf.Apply(ops); err != nil {
		// BaseLen 已校验过，到这里失败同样是不变量问题
		log.Printf("fatal: apply after append failed doc=%s rev=%d err=%v", s.docID, rec.Revision, err)
		s.closed = true
		return AppliedOp{}, fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	s.revision++

	applied := AppliedOp{
		OperationID: fmt.Sprintf("o-%d", now.UnixNano()),
		Revision:    s.revision,
		Originator:  sub.Originator,
		Ops:         ops,
		AppliedAt:   now,
	}
	s.appendToWindow(applied)

	if s.snapshotEvery > 0 && s.revision%s.snapshotEvery == 0 {
		if err := s.st.SaveSnapshot(ctx, s.docID, s.revision, s.buf.String()); err != nil {
			log.Printf("save snapshot doc=%s rev=%d: %v", s.docID, s.revision, err)
		}
	}

	if s.events != nil {
		evt := DocOpEvent{
			EventType:    "OP_COMMITTED",
			DocID:        s.docID,
			OperationID:  applied.OperationID,
			Revision:     applied.Revision,
			Originator:   applied.Originator,
			BaseRevision: sub.BaseRevision,
			Ops:          applied.Ops,
			AppliedAt:    applied.AppliedAt,
		}
		if err := s.events.Enqueue(evt); err != nil {
			// 事件流不参与一致性，丢了只记一笔
			log.Printf("enqueue op event doc=%s rev=%d: %v", s.docID, applied.Revision, err)
		}
	}

	return applied, nil
}

// appendToWindow 窗口满了丢最老的一条，并相应抬高地平线
func (s *DocSession) appendToWindow(op AppliedOp) {
	if s.ringCap > 0 && len(s.ops) >= s.ringCap {
		drop := len(s.ops) - s.ringCap + 1
		s.ops = append(s.ops[:0:0], s.ops[drop:]...)
	}
	s.ops = append(s.ops, op)
	s.horizon = s.ops[0].Revision - 1
}

// OpsSince 返回 fromRevision 之后的已提交操作（追平用）
func (s *DocSession) OpsSince(fromRevision uint64) ([]AppliedOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fromRevision < s.horizon {
		return nil, fmt.Errorf("%w: fromRevision %d predates horizon %d", ErrStaleTooFar, fromRevision, s.horizon)
	}
	var out []AppliedOp
	for _, op := range s.ops {
		if op.Revision > fromRevision {
			out = append(out, op)
		}
	}
	return out, nil
}

// ComposedSince 把 fromRevision 之后的历史折叠成一个 delta，
// 短暂掉线重连时下发它比整份快照小得多
func (s *DocSession) ComposedSince(fromRevision uint64) (delta.Delta, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fromRevision < s.horizon {
		return nil, 0, fmt.Errorf("%w: fromRevision %d predates horizon %d", ErrStaleTooFar, fromRevision, s.horizon)
	}
	var acc delta.Delta
	for _, op := range s.ops {
		if op.Revision > fromRevision {
			acc = delta.Compose(acc, op.Ops)
		}
	}
	return acc, s.revision, nil
}

// SaveSnapshot 手动落一份当前快照
func (s *DocSession) SaveSnapshot(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	content := s.buf.String()
	rev := s.revision
	s.mu.Unlock()
	return rev, s.st.SaveSnapshot(ctx, s.docID, rev, content)
}

func (s *DocSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
