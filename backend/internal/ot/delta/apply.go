package delta

import "fmt"

// Apply 把 delta 从左到右作用在 content 上，返回新内容。
// 偏移是 rune 坐标。显式步骤走完后剩余的内容视为隐式 retain。
// retain/delete 超出文档末尾返回 ErrInvalidOperation，内容不变。
func Apply(content string, d Delta) (string, error) {
	src := []rune(content)
	pos := 0
	out := make([]rune, 0, len(src)+TargetLen(d))
	for _, op := range d {
		switch op.Kind {
		case KindRetain:
			if op.Count < 0 || pos+op.Count > len(src) {
				return "", fmt.Errorf("%w: retain %d at %d beyond end %d", ErrInvalidOperation, op.Count, pos, len(src))
			}
			out = append(out, src[pos:pos+op.Count]...)
			pos += op.Count
		case KindInsert:
			out = append(out, []rune(op.Text)...)
		case KindDelete:
			if op.Count < 0 || pos+op.Count > len(src) {
				return "", fmt.Errorf("%w: delete %d at %d beyond end %d", ErrInvalidOperation, op.Count, pos, len(src))
			}
			pos += op.Count
		default:
			return "", fmt.Errorf("%w: unknown op kind %q", ErrInvalidOperation, op.Kind)
		}
	}
	out = append(out, src[pos:]...)
	return string(out), nil
}

// Invert 求 d 的逆操作：对 d 作用前的内容 base 取材，
// 使 Apply(Apply(base, d), Invert(d, base)) == base。用于撤销。
// 注意：纯文本快照不记录属性，retain 带来的属性变更只能逆成“移除该属性”。
func Invert(d Delta, base string) Delta {
	src := []rune(base)
	pos := 0
	var inv Delta
	for _, op := range d {
		switch op.Kind {
		case KindInsert:
			inv = inv.push(Op{Kind: KindDelete, Count: len([]rune(op.Text))})
		case KindDelete:
			inv = inv.push(Op{Kind: KindInsert, Text: string(src[pos : pos+op.Count])})
			pos += op.Count
		case KindRetain:
			var attrs map[string]any
			if op.Attrs != nil {
				attrs = make(map[string]any, len(op.Attrs))
				for k := range op.Attrs {
					attrs[k] = nil
				}
			}
			inv = inv.push(Op{Kind: KindRetain, Count: op.Count, Attrs: attrs})
			pos += op.Count
		}
	}
	return inv.chop()
}
