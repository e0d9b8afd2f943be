package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"syncServer/backend/internal/ot/delta"
)

// MySQLStore：操作日志 + 快照的 MySQL 实现。
//
// 建表（两张表都用 (document_id, revision) 唯一键兜底并发写入）：
//
//	CREATE TABLE document_ops (
//	    document_id VARCHAR(64)     NOT NULL,
//	    revision    BIGINT UNSIGNED NOT NULL,
//	    originator  VARCHAR(64)     NOT NULL,
//	    ops         JSON            NOT NULL,
//	    applied_at  DATETIME(3)     NOT NULL,
//	    UNIQUE KEY uk_doc_rev (document_id, revision)
//	);
//
//	CREATE TABLE document_snapshots (
//	    document_id VARCHAR(64)     NOT NULL,
//	    revision    BIGINT UNSIGNED NOT NULL,
//	    content     MEDIUMTEXT      NOT NULL,
//	    created_at  DATETIME(3)     NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
//	    UNIQUE KEY uk_doc_rev (document_id, revision)
//	);
type MySQLStore struct{ db *sql.DB }

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// mysql 错误码 1062 = 唯一键冲突
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (s *MySQLStore) CreateDocument(ctx context.Context, docID string, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, revision, content) VALUES (?, 0, ?)`,
		docID, content,
	)
	if isDuplicateKey(err) {
		return ErrDocumentExists
	}
	return err
}

func (s *MySQLStore) LoadSnapshot(ctx context.Context, docID string) (SnapshotRecord, error) {
	var rec SnapshotRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, revision, content, created_at
		 FROM document_snapshots WHERE document_id = ?
		 ORDER BY revision DESC LIMIT 1`,
		docID,
	).Scan(&rec.DocID, &rec.Revision, &rec.Content, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, ErrDocumentNotFound
	}
	if err != nil {
		return SnapshotRecord{}, err
	}
	return rec, nil
}

func (s *MySQLStore) SaveSnapshot(ctx context.Context, docID string, revision uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, revision, content) VALUES (?, ?, ?)`,
		docID, revision, content,
	)
	if isDuplicateKey(err) {
		// 同 revision 的快照内容必然相同，重复保存当幂等处理
		return nil
	}
	return err
}

// AppendOperation 靠唯一键实现 “revision 没被占用才写入”。
// 1062 翻译成 ErrRevisionLogConflict，由上层当不变量破坏处理。
func (s *MySQLStore) AppendOperation(ctx context.Context, rec OperationRecord) error {
	opsJSON, err := json.Marshal(rec.Ops)
	if err != nil {
		return fmt.Errorf("marshal ops: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_ops (document_id, revision, originator, ops, applied_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.DocID, rec.Revision, rec.Originator, opsJSON, rec.AppliedAt,
	)
	if isDuplicateKey(err) {
		return ErrRevisionLogConflict
	}
	return err
}

func (s *MySQLStore) LoadOperationsSince(ctx context.Context, docID string, fromRevision uint64) ([]OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, revision, originator, ops, applied_at
		 FROM document_ops WHERE document_id = ? AND revision > ?
		 ORDER BY revision ASC`,
		docID, fromRevision,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OperationRecord
	for rows.Next() {
		var rec OperationRecord
		var opsJSON []byte
		if err := rows.Scan(&rec.DocID, &rec.Revision, &rec.Originator, &opsJSON, &rec.AppliedAt); err != nil {
			return nil, err
		}
		var ops delta.Delta
		if err := json.Unmarshal(opsJSON, &ops); err != nil {
			return nil, fmt.Errorf("unmarshal ops at rev %d: %w", rec.Revision, err)
		}
		rec.Ops = ops
		out = append(out, rec)
	}
	return out, rows.Err()
}
