package delta

import "math"

// Transform 求 a 相对 b 的变换结果 a'：a 和 b 基于同一版本产生，
// b 已经先被提交，a' 是补偿过 b 的位移/删除后、能直接应用在 b 之后的 a。
// 收敛性质：Apply(Apply(base,b), Transform(a,b,p)) == Apply(Apply(base,a), Transform(b,a,!p))
//
// aHasPriority 决定同位置插入的先后：优先方的插入排在前面。
// 调用方（DocSession）用 originator 的字典序统一推导这个标志，
// 保证全系统对并发插入的排序结果一致。
func Transform(a, b Delta, aHasPriority bool) Delta {
	bPriority := !aHasPriority
	itB := newIterator(b)
	itA := newIterator(a)
	var out Delta
	for itA.hasNext() || itB.hasNext() {
		if itB.peekKind() == KindInsert && (bPriority || itA.peekKind() != KindInsert) {
			// b 插入的区间在 a' 里整体跳过
			out = out.push(Op{Kind: KindRetain, Count: opLen(itB.next(math.MaxInt))})
		} else if itA.peekKind() == KindInsert {
			out = out.push(itA.next(math.MaxInt))
		} else {
			n := itA.peekLen()
			if m := itB.peekLen(); m < n {
				n = m
			}
			opA := itA.next(n)
			opB := itB.next(n)
			if opB.Kind == KindDelete {
				// b 已删掉这段，a 对这段的 retain/delete 都落空
				continue
			} else if opA.Kind == KindDelete {
				out = out.push(opA)
			} else {
				out = out.push(Op{Kind: KindRetain, Count: n, Attrs: transformAttrs(opB.Attrs, opA.Attrs, bPriority)})
			}
		}
	}
	return out.chop()
}

// Compose 把先后两次应用的 a、b 合并为一个等价 delta，
// 用于把追平历史折叠成一次下发。
func Compose(a, b Delta) Delta {
	itA := newIterator(a)
	itB := newIterator(b)
	var out Delta
	for itA.hasNext() || itB.hasNext() {
		if itB.peekKind() == KindInsert {
			out = out.push(itB.next(math.MaxInt))
		} else if itA.peekKind() == KindDelete {
			out = out.push(itA.next(math.MaxInt))
		} else {
			n := itA.peekLen()
			if m := itB.peekLen(); m < n {
				n = m
			}
			opA := itA.next(n)
			opB := itB.next(n)
			switch {
			case opB.Kind == KindRetain && opA.Kind == KindRetain:
				out = out.push(Op{Kind: KindRetain, Count: n, Attrs: composeAttrs(opA.Attrs, opB.Attrs, true)})
			case opB.Kind == KindRetain: // opA 为 insert
				out = out.push(Op{Kind: KindInsert, Text: opA.Text, Attrs: composeAttrs(opA.Attrs, opB.Attrs, false)})
			case opA.Kind == KindRetain: // opB 为 delete
				out = out.push(opB)
			default:
				// a 的 insert 被 b 的 delete 抵消，什么都不输出
			}
		}
	}
	return out.chop()
}

// transformAttrs 对应 retain 上的属性变更：双方都改同一属性时，
// 优先方（base 侧）保留，另一方的改动被丢弃。
func transformAttrs(base, applied map[string]any, basePriority bool) map[string]any {
	if !basePriority || len(base) == 0 {
		return applied
	}
	out := make(map[string]any)
	for k, v := range applied {
		if _, ok := base[k]; !ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// composeAttrs 合并属性，后写覆盖先写。keepNil 为 false 时
// nil 值表示移除属性，直接从结果里剔除（insert 不需要记录“无属性”）。
func composeAttrs(a, b map[string]any, keepNil bool) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	if !keepNil {
		for k, v := range out {
			if v == nil {
				delete(out, k)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
