package collab

import (
	"context"
	"errors"
	"fmt"
)

const defaultSemaphoreSlots = 100

// SemaphoreControl 用带缓冲 channel 实现的计数信号量。
// 提交路径和 Kafka 发送各配一个，上限按压力来源分别调
type SemaphoreControl struct {
	slots chan struct{}
}

// NewSemaphoreControl limit <= 0 时取默认上限
func NewSemaphoreControl(limit int) *SemaphoreControl {
	if limit <= 0 {
		limit = defaultSemaphoreSlots
	}
	return &SemaphoreControl{slots: make(chan struct{}, limit)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("semaphore acquire: %w", ctx.Err())
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.slots:
		return nil
	default:
		return errors.New("semaphore release without matching acquire")
	}
}
