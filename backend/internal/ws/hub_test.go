package ws

import (
	"testing"
)

func newTestConn(sendCap int) *Conn {
	return &Conn{
		subs: make(map[string]struct{}),
		send: make(chan OutboundMessage, sendCap),
	}
}

func recvNow(t *testing.T, c *Conn) OutboundMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("expected a queued message, send channel is empty")
		return nil
	}
}

func assertEmpty(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("expected empty send channel, got %T (%s)", msg, msg.MessageType())
	default:
	}
}

// 提交方自己不收广播，其余订阅者每人一份
func TestHub_BroadcastExcludesOriginator(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn(4)
	b := newTestConn(4)
	c := newTestConn(4)
	h.Join("doc1", a)
	h.Join("doc1", b)
	h.Join("doc1", c)

	h.BroadcastApplied("doc1", a, OpBroadcastMessage{Type: "op_broadcast", DocID: "doc1", Revision: 1})

	assertEmpty(t, a)
	for _, conn := range []*Conn{b, c} {
		msg := recvNow(t, conn)
		bc, ok := msg.(OpBroadcastMessage)
		if !ok {
			t.Fatalf("got %T, want OpBroadcastMessage", msg)
		}
		if bc.DocID != "doc1" || bc.Revision != 1 {
			t.Fatalf("broadcast payload = %+v", bc)
		}
	}
}

// 不同文档的房间互不串扰
func TestHub_BroadcastScopedToRoom(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn(4)
	b := newTestConn(4)
	h.Join("doc1", a)
	h.Join("doc2", b)

	h.BroadcastApplied("doc1", nil, OpBroadcastMessage{Type: "op_broadcast", DocID: "doc1", Revision: 1})

	recvNow(t, a)
	assertEmpty(t, b)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn(4)
	b := newTestConn(4)
	h.Join("doc1", a)
	h.Join("doc1", b)
	h.Leave("doc1", b)

	h.BroadcastApplied("doc1", nil, OpBroadcastMessage{Type: "op_broadcast", DocID: "doc1", Revision: 1})

	recvNow(t, a)
	assertEmpty(t, b)
}

// 队列满的订阅者丢消息而不是阻塞提交路径
func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	slow := newTestConn(1)
	h.Join("doc1", slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for rev := uint64(1); rev <= 10; rev++ {
			h.BroadcastApplied("doc1", nil, OpBroadcastMessage{Type: "op_broadcast", DocID: "doc1", Revision: rev})
		}
	}()
	<-done

	// 只留得下第一条，后面的全丢了（靠追平恢复）
	msg := recvNow(t, slow)
	if bc := msg.(OpBroadcastMessage); bc.Revision != 1 {
		t.Fatalf("queued revision = %d, want 1", bc.Revision)
	}
	assertEmpty(t, slow)
}

func TestHub_BroadcastPresence(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn(4)
	b := newTestConn(4)
	h.Join("doc1", a)
	h.Join("doc1", b)

	h.BroadcastPresence("doc1", []string{"u1", "u2"})

	for _, conn := range []*Conn{a, b} {
		msg := recvNow(t, conn)
		pm, ok := msg.(PresenceMessage)
		if !ok {
			t.Fatalf("got %T, want PresenceMessage", msg)
		}
		if len(pm.Members) != 2 {
			t.Fatalf("members = %v, want 2 entries", pm.Members)
		}
	}
}
