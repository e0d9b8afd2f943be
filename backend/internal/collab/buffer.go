package collab

import (
	"syncServer/backend/internal/ot/delta"
)

// 抽象文档内容缓冲区接口。
// DocSession 只通过它持有物化内容，换实现（piece table / 纯字符串）不影响提交路径。
// Apply 必须是全有或全无的：越界时报错且内容保持不变。
type Buffer interface {
	Len() int
	Apply(d delta.Delta) error
	String() string
}
