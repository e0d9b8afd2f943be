package ws

import (
	"sync"

	"syncServer/backend/internal/cache"
)

// Hub 每文档的扇出：维护 docID -> 订阅连接集合，
// 把已提交操作推给除提交方之外的所有订阅者。
// 投递是 enqueue-and-return 的：慢/断连的订阅者丢消息，
// 靠重新订阅时的追平恢复，绝不反压提交路径。
type Hub struct {
	// 在线状态落在外部 Redis，跨实例可见；可为 nil（纯内存部署/测试）
	presence cache.PresenceCache
	mu       sync.RWMutex
	// 房间里存连接而不是用户：同一用户可开多个标签页，广播要逐连接发
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// BroadcastApplied 把已提交操作推给 docID 的所有订阅者，except 除外
//（提交方收 op_ack，不收自己操作的广播）
func (h *Hub) BroadcastApplied(docID string, except *Conn, msg OutboundMessage) {
	h.mu.RLock()
	conns := h.rooms[docID]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.SendMessage_Enqueue(msg)
	}
}

// BroadcastPresence 给房间里所有连接推一份在线名单
func (h *Hub) BroadcastPresence(docID string, members []string) {
	h.mu.RLock()
	conns := h.rooms[docID]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	msg := PresenceMessage{Type: "presence", DocID: docID, Members: members}
	for _, c := range targets {
		c.SendMessage_Enqueue(msg)
	}
}
