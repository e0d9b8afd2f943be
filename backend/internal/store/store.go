package store

import (
	"context"
	"errors"
	"time"

	"syncServer/backend/internal/ot/delta"
)

var (
	ErrDocumentNotFound = errors.New("DOC_NOT_FOUND")
	ErrDocumentExists   = errors.New("DOC_ALREADY_EXISTS")
	// 出现这个错说明同一 revision 被写了两次。单进程内有每文档互斥，
	// 正常情况下不可能发生；多进程共享存储时它就是乐观并发控制的信号。
	ErrRevisionLogConflict = errors.New("REVISION_LOG_CONFLICT")
)

// SnapshotRecord 某一 revision 的物化内容
type SnapshotRecord struct {
	DocID     string
	Revision  uint64
	Content   string
	CreatedAt time.Time
}

// OperationRecord 操作日志里的一条已提交操作
type OperationRecord struct {
	DocID      string
	Revision   uint64
	Originator string
	Ops        delta.Delta
	AppliedAt  time.Time
}

// Store 持久层读写契约：只追加的按文档操作日志 + 周期快照。
// AppendOperation 必须在 (docID, revision) 上原子防重，
// 这样即使多个进程各自跑 session，日志也不会出现分叉。
type Store interface {
	// CreateDocument 写入 revision 0 的快照。已存在返回 ErrDocumentExists。
	CreateDocument(ctx context.Context, docID string, content string) error
	// LoadSnapshot 返回最新快照。文档不存在返回 ErrDocumentNotFound。
	LoadSnapshot(ctx context.Context, docID string) (SnapshotRecord, error)
	// SaveSnapshot 落一份快照。同 revision 重复保存是幂等的。
	SaveSnapshot(ctx context.Context, docID string, revision uint64, content string) error
	// AppendOperation 追加一条已提交操作。revision 冲突返回 ErrRevisionLogConflict。
	AppendOperation(ctx context.Context, rec OperationRecord) error
	// LoadOperationsSince 返回 revision 大于 fromRevision 的操作，按 revision 升序。
	LoadOperationsSince(ctx context.Context, docID string, fromRevision uint64) ([]OperationRecord, error)
}
