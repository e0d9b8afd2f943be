package collab

import (
	"time"

	"syncServer/backend/internal/ot/delta"
)

// DocOpEvent 每条已提交操作对外发布的事件（Kafka，按 docId 分区）。
// 下游拿它做审计、搜索索引、跨实例同步，不参与本进程一致性。
type DocOpEvent struct {
	EventType    string      `json:"eventType"` // 固定 "OP_COMMITTED"
	DocID        string      `json:"docId"`
	OperationID  string      `json:"operationId"`
	Revision     uint64      `json:"revision"`
	Originator   string      `json:"originator"`
	BaseRevision uint64      `json:"baseRevision"`
	Ops          delta.Delta `json:"ops"`
	AppliedAt    time.Time   `json:"appliedAt"`
}
