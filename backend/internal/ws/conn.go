package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/store"
)

const (
	presenceTTL    = 600 * time.Second
	acquireTimeout = 200 * time.Millisecond
	submitTimeout  = 2 * time.Second
)

// Conn 每个连接一个：协议状态机（Connected -> Subscribed(docs) -> Closed）。
// 读循环把入站消息翻译成对 DocSession / Hub 的调用，
// 出站走带缓冲的 send 通道由写循环消费。
type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	registry *collab.Registry
	sem      *collab.SemaphoreControl
	// 连接标识。op_ack / op_broadcast 的区分靠消息种类本身，
	// originator 只用于服务端的插入 tie-break 和在线名单
	originator string
	// 一个连接可以同时订阅多个文档
	subs map[string]struct{}

	// sendMu 保护 send 的关闭状态：Hub 的广播在拿到目标列表后才入队，
	// 这段时间里连接可能已经 teardown，往已关闭的 channel 发送会 panic
	sendMu     sync.Mutex
	sendClosed bool
	send       chan OutboundMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, registry *collab.Registry, sem *collab.SemaphoreControl, originator string) *Conn {
	return &Conn{
		ws:         ws,
		hub:        hub,
		registry:   registry,
		sem:        sem,
		originator: originator,
		subs:       make(map[string]struct{}),
		send:       make(chan OutboundMessage, 32),
	}
}

// SendMessage_Enqueue 入队即返回；队列满直接丢，
// 掉的消息由客户端重新订阅时追平补回。
// 连接已 teardown 时静默丢弃，不 panic
func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.teardown()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (originator=%s): %v", c.originator, err)
			return
		}
		switch msg.Type {
		case "subscribe":
			c.handleSubscribe(ctx, msg)
		case "unsubscribe":
			c.handleUnsubscribe(ctx, msg)
		case "op_submit":
			c.handleOpSubmit(msg)
		case "create_document":
			c.handleCreate(ctx, msg)
		case "save_document":
			c.handleSave(ctx, msg)
		case "heartbeat":
			c.handleHeartbeat(ctx)
		default:
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "UNKNOWN_MESSAGE_TYPE", Message: msg.Type})
		}
	}
}

// teardown 断连清理：退房、放掉 session 引用、撤在线状态。
// Subscription 关系不跨重连保留，重连后从 subscribe 重建
func (c *Conn) teardown() {
	ctx := context.Background()
	for docID := range c.subs {
		c.hub.Leave(docID, c)
		c.registry.Release(docID)
		if c.hub.presence != nil {
			if err := c.hub.presence.RemoveMember(ctx, docID, c.originator); err != nil {
				log.Printf("remove presence doc=%s originator=%s: %v", docID, c.originator, err)
			}
			c.pushPresence(ctx, docID)
		}
	}
	c.subs = make(map[string]struct{})

	c.sendMu.Lock()
	c.sendClosed = true
	close(c.send)
	c.sendMu.Unlock()
}

// pushPresence 给房间里所有连接推一份最新在线名单
func (c *Conn) pushPresence(ctx context.Context, docID string) {
	if c.hub.presence == nil {
		return
	}
	members, err := c.hub.presence.GetAliveMembers(ctx, docID)
	if err != nil {
		log.Printf("get presence doc=%s: %v", docID, err)
		return
	}
	c.hub.BroadcastPresence(docID, members)
}

func (c *Conn) handleSubscribe(ctx context.Context, msg ClientMessage) {
	if msg.DocID == "" {
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "MISSING_DOC_ID"})
		return
	}
	sess, err := c.registry.Get(ctx, msg.DocID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "DOC_NOT_FOUND", Message: msg.DocID})
		} else {
			log.Printf("subscribe doc=%s: %v", msg.DocID, err)
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "SUBSCRIBE_FAILED"})
		}
		return
	}

	if _, ok := c.subs[msg.DocID]; !ok {
		// 先进房再取快照：进房之后的提交要么进了快照，要么已在 send 队列里
		c.hub.Join(msg.DocID, c)
		c.registry.Retain(msg.DocID)
		c.subs[msg.DocID] = struct{}{}
		if c.hub.presence != nil {
			if err := c.hub.presence.AddMember(ctx, msg.DocID, c.originator, presenceTTL); err != nil {
				log.Printf("add presence doc=%s: %v", msg.DocID, err)
			}
			// 新人进房，全房间推一次名单
			c.pushPresence(ctx, msg.DocID)
		}
	}

	// 带了 lastKnownRevision 且缺口还在保留窗口内，就发增量而不是全量
	if msg.LastKnownRevision != nil {
		last := *msg.LastKnownRevision
		if ops, rev, err := sess.ComposedSince(last); err == nil && last <= rev {
			c.SendMessage_Enqueue(CatchUpMessage{Type: "catch_up", DocID: msg.DocID, FromRevision: last, Revision: rev, Ops: ops})
			return
		}
		// 太旧或声称的版本超前：退回全量
	}
	snap := sess.SnapshotNow()
	c.SendMessage_Enqueue(SnapshotMessage{Type: "snapshot", DocID: msg.DocID, Revision: snap.Revision, Content: snap.Content})
}

func (c *Conn) handleUnsubscribe(ctx context.Context, msg ClientMessage) {
	if _, ok := c.subs[msg.DocID]; !ok {
		return
	}
	delete(c.subs, msg.DocID)
	c.hub.Leave(msg.DocID, c)
	c.registry.Release(msg.DocID)
	if c.hub.presence != nil {
		if err := c.hub.presence.RemoveMember(ctx, msg.DocID, c.originator); err != nil {
			log.Printf("remove presence doc=%s: %v", msg.DocID, err)
		}
		c.pushPresence(ctx, msg.DocID)
	}
}

func (c *Conn) handleOpSubmit(msg ClientMessage) {
	if _, ok := c.subs[msg.DocID]; !ok {
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "NOT_SUBSCRIBED", Message: msg.DocID})
		return
	}

	acquireCtx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
	defer cancel()
	if err := c.sem.Acquire(acquireCtx); err != nil {
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "BUSY", Message: err.Error()})
		return
	}
	defer c.sem.Release()

	sess, err := c.registry.Get(context.Background(), msg.DocID)
	if err != nil {
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "SUBMIT_FAILED", Message: err.Error()})
		return
	}

	// 提交用独立的超时 ctx，不挂在连接生命周期上：
	// 进了串行临界区的提交必须完整落日志，连接中途断了顶多丢个 ack，
	// 客户端重连追平即可（日志才是权威）
	submitCtx, cancelSubmit := context.WithTimeout(context.Background(), submitTimeout)
	defer cancelSubmit()

	applied, err := sess.Submit(submitCtx, collab.SubmittedOp{
		BaseRevision: msg.BaseRevision,
		Originator:   c.originator,
		Ops:          msg.Ops,
	})
	switch {
	case errors.Is(err, collab.ErrStaleTooFar):
		c.SendMessage_Enqueue(ResyncRequiredMessage{Type: "resync_required", DocID: msg.DocID})
		return
	case errors.Is(err, collab.ErrInvalidOperation):
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "INVALID_OPERATION", Message: err.Error()})
		return
	case err != nil:
		log.Printf("submit doc=%s originator=%s: %v", msg.DocID, c.originator, err)
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "SUBMIT_FAILED"})
		return
	}

	// 提交方收 ack（含被变换后的 payload），其他订阅者收广播
	c.SendMessage_Enqueue(OpAckMessage{Type: "op_ack", DocID: msg.DocID, Revision: applied.Revision, Ops: applied.Ops})
	c.hub.BroadcastApplied(msg.DocID, c, OpBroadcastMessage{
		Type:       "op_broadcast",
		DocID:      msg.DocID,
		Revision:   applied.Revision,
		Originator: applied.Originator,
		Ops:        applied.Ops,
		AppliedAt:  applied.AppliedAt,
	})
}

func (c *Conn) handleCreate(ctx context.Context, msg ClientMessage) {
	docID := msg.DocID
	if docID == "" {
		docID = newDocID()
	}
	sess, err := c.registry.Create(ctx, docID, msg.Initial)
	if err != nil {
		if errors.Is(err, store.ErrDocumentExists) {
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "DOC_ALREADY_EXISTS", Message: docID})
		} else {
			log.Printf("create doc=%s: %v", docID, err)
			c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "CREATE_FAILED"})
		}
		return
	}
	snap := sess.SnapshotNow()
	c.SendMessage_Enqueue(SnapshotMessage{Type: "snapshot", DocID: docID, Revision: snap.Revision, Content: snap.Content})
}

func (c *Conn) handleSave(ctx context.Context, msg ClientMessage) {
	sess, err := c.registry.Get(ctx, msg.DocID)
	if err != nil {
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "SAVE_FAILED", Message: err.Error()})
		return
	}
	rev, err := sess.SaveSnapshot(ctx)
	if err != nil {
		log.Printf("save doc=%s: %v", msg.DocID, err)
		c.SendMessage_Enqueue(ErrorMessage{Type: "error", Code: "SAVE_FAILED"})
		return
	}
	c.SendMessage_Enqueue(SavedMessage{Type: "document_saved", DocID: msg.DocID, Revision: rev})
}

func (c *Conn) handleHeartbeat(ctx context.Context) {
	if c.hub.presence == nil {
		return
	}
	for docID := range c.subs {
		if err := c.hub.presence.AddMember(ctx, docID, c.originator, presenceTTL); err != nil {
			log.Printf("refresh presence doc=%s: %v", docID, err)
			continue
		}
		members, err := c.hub.presence.GetAliveMembers(ctx, docID)
		if err != nil {
			log.Printf("get presence doc=%s: %v", docID, err)
			continue
		}
		c.SendMessage_Enqueue(PresenceMessage{Type: "presence", DocID: docID, Members: members})
	}
}

// writeLoop 持续消费 send 通道直到 teardown 关闭它
func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
