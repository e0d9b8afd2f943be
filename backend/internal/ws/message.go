package ws

import (
	"time"

	"syncServer/backend/internal/ot/delta"
)

// ClientMessage 入站消息的统一信封，按 type 分流：
// - subscribe:       docId 必填，lastKnownRevision 可选（带了就尝试增量追平）
// - unsubscribe:     docId
// - op_submit:       docId + baseRevision + ops
// - create_document: docId 可选（缺省服务端生成），initial 可选
// - save_document:   docId
// - heartbeat:       无参数，刷新所有已订阅文档的在线状态
type ClientMessage struct {
	Type              string      `json:"type"`
	DocID             string      `json:"docId,omitempty"`
	LastKnownRevision *uint64     `json:"lastKnownRevision,omitempty"`
	BaseRevision      uint64      `json:"baseRevision,omitempty"`
	Ops               delta.Delta `json:"ops,omitempty"`
	Initial           string      `json:"initial,omitempty"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// ConnectedMessage 握手回执，告知本连接的 originator 标识
type ConnectedMessage struct {
	Type       string `json:"type"` // 固定 "connected"
	Originator string `json:"originator"`
}

// SnapshotMessage 全量状态。订阅回执在 Join 之后才取快照，
// 所以快照 revision 不小于任何已入队的广播；客户端收到快照后
// 丢弃 revision <= snapshot.revision 的广播即可。
type SnapshotMessage struct {
	Type     string `json:"type"` // 固定 "snapshot"
	DocID    string `json:"docId"`
	Revision uint64 `json:"revision"`
	Content  string `json:"content"`
}

// CatchUpMessage 增量追平：fromRevision 之后的历史折叠成一个 delta
type CatchUpMessage struct {
	Type         string      `json:"type"` // 固定 "catch_up"
	DocID        string      `json:"docId"`
	FromRevision uint64      `json:"fromRevision"`
	Revision     uint64      `json:"revision"`
	Ops          delta.Delta `json:"ops"`
}

// OpAckMessage 只发给提交方：服务端实际提交的（可能被变换过的）payload，
// 客户端用它校正本地乐观状态
type OpAckMessage struct {
	Type     string      `json:"type"` // 固定 "op_ack"
	DocID    string      `json:"docId"`
	Revision uint64      `json:"revision"`
	Ops      delta.Delta `json:"ops"`
}

// OpBroadcastMessage 发给同文档的其他订阅者。
// 和 op_ack 在结构上就是两种消息，客户端不需要靠身份比对来抑制回环
type OpBroadcastMessage struct {
	Type       string      `json:"type"` // 固定 "op_broadcast"
	DocID      string      `json:"docId"`
	Revision   uint64      `json:"revision"`
	Originator string      `json:"originator"`
	Ops        delta.Delta `json:"ops"`
	AppliedAt  time.Time   `json:"appliedAt,omitempty"`
}

// ResyncRequiredMessage baseRevision 早于保留地平线：
// 客户端必须重新拉快照后再提交
type ResyncRequiredMessage struct {
	Type  string `json:"type"` // 固定 "resync_required"
	DocID string `json:"docId"`
}

// SavedMessage save_document 的回执
type SavedMessage struct {
	Type     string `json:"type"` // 固定 "document_saved"
	DocID    string `json:"docId"`
	Revision uint64 `json:"revision"`
}

// PresenceMessage 某文档当前在线的 originator 列表
type PresenceMessage struct {
	Type    string   `json:"type"` // 固定 "presence"
	DocID   string   `json:"docId"`
	Members []string `json:"members"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // 固定 "error"
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (m ConnectedMessage) MessageType() string      { return m.Type }
func (m SnapshotMessage) MessageType() string       { return m.Type }
func (m CatchUpMessage) MessageType() string        { return m.Type }
func (m OpAckMessage) MessageType() string          { return m.Type }
func (m OpBroadcastMessage) MessageType() string    { return m.Type }
func (m ResyncRequiredMessage) MessageType() string { return m.Type }
func (m SavedMessage) MessageType() string          { return m.Type }
func (m PresenceMessage) MessageType() string       { return m.Type }
func (m ErrorMessage) MessageType() string          { return m.Type }
