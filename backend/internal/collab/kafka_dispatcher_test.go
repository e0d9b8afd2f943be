package collab

import (
	"errors"
	"testing"
	"time"
)

// 队列满时 Enqueue 立即返回错误，绝不把提交路径挂在事件流上
func TestEventDispatcher_EnqueueDropsWhenFull(t *testing.T) {
	// Workers: 0 —— 没有消费者，队列只进不出
	d := NewEventDispatcher(nil, "", nil, EventDispatcherOptions{QueueSize: 1, Workers: 0})

	if err := d.Enqueue(DocOpEvent{DocID: "doc1", Revision: 1}); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}

	start := time.Now()
	err := d.Enqueue(DocOpEvent{DocID: "doc1", Revision: 2})
	if !errors.Is(err, ErrEventQueueFull) {
		t.Fatalf("Enqueue() on full queue error = %v, want ErrEventQueueFull", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Enqueue() on full queue took %v, want immediate return", elapsed)
	}
}
