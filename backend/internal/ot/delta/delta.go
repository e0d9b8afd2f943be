package delta

import "errors"

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// 操作里出现越界的 retain/delete 时返回
var ErrInvalidOperation = errors.New("INVALID_OPERATION")

type Op struct {
	Kind  Kind           `json:"kind"`            // "retain" / "insert" / "delete"
	Count int            `json:"count,omitempty"` // retain/delete 的长度
	Text  string         `json:"text,omitempty"`  // insert 的文本
	Attrs map[string]any `json:"attrs,omitempty"` // 样式属性（粗体/颜色等）
}

type Delta []Op

// 线格式示例："ops":[{"kind":"retain","count":5},{"kind":"insert","text":"Hello"}]

// 单个 op 覆盖的长度。insert 按 rune 数计（偏移都是 rune 坐标，不是 byte）
func opLen(op Op) int {
	if op.Kind == KindInsert {
		return len([]rune(op.Text))
	}
	return op.Count
}

// BaseLen 返回该 delta 要求的最小文档长度（retain + delete 之和）。
// 应用前用它做越界校验。
func BaseLen(d Delta) int {
	n := 0
	for _, op := range d {
		if op.Kind == KindRetain || op.Kind == KindDelete {
			n += op.Count
		}
	}
	return n
}

// TargetLen 返回显式步骤应用后产出的长度（retain + insert 之和，
// 不含末尾隐式 retain 的部分）。
func TargetLen(d Delta) int {
	n := 0
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			n += op.Count
		case KindInsert:
			n += len([]rune(op.Text))
		}
	}
	return n
}

func attrsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// push 往 delta 末尾追加一个 op。相邻同类且属性相同的 op 会被合并，
// 保证 transform/compose 的输出是规范形式（不会出现 retain 1, retain 1, ...）
func (d Delta) push(op Op) Delta {
	if opLen(op) == 0 {
		return d
	}
	if n := len(d); n > 0 {
		last := &d[n-1]
		if last.Kind == op.Kind {
			switch op.Kind {
			case KindDelete:
				last.Count += op.Count
				return d
			case KindRetain:
				if attrsEqual(last.Attrs, op.Attrs) {
					last.Count += op.Count
					return d
				}
			case KindInsert:
				if attrsEqual(last.Attrs, op.Attrs) {
					last.Text += op.Text
					return d
				}
			}
		}
	}
	return append(d, op)
}

// chop 去掉末尾无属性的 retain（等价于隐式 retain 到文末）
func (d Delta) chop() Delta {
	for n := len(d); n > 0; n = len(d) {
		last := d[n-1]
		if last.Kind == KindRetain && last.Attrs == nil {
			d = d[:n-1]
			continue
		}
		break
	}
	return d
}
