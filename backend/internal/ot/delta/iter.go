package delta

import "math"

// iterator 按长度切分地遍历一个 delta。
// transform/compose 需要把两边的 op 对齐成等长片段，
// 所以 next(n) 允许只取当前 op 的前 n 个单位，剩下的留给下一次。
type iterator struct {
	ops    Delta
	index  int
	offset int // 当前 op 内已消费的长度
}

func newIterator(d Delta) *iterator {
	return &iterator{ops: d}
}

func (it *iterator) hasNext() bool {
	return it.index < len(it.ops)
}

// peekKind 越过末尾时返回 retain：delta 末尾之后等价于无限长的隐式 retain
func (it *iterator) peekKind() Kind {
	if !it.hasNext() {
		return KindRetain
	}
	return it.ops[it.index].Kind
}

func (it *iterator) peekLen() int {
	if !it.hasNext() {
		return math.MaxInt
	}
	return opLen(it.ops[it.index]) - it.offset
}

// next 取出当前 op 的至多 n 个单位。越过末尾时返回 retain(n)。
func (it *iterator) next(n int) Op {
	if !it.hasNext() {
		return Op{Kind: KindRetain, Count: n}
	}
	cur := it.ops[it.index]
	offset := it.offset
	remain := opLen(cur) - offset
	if n >= remain {
		n = remain
		it.index++
		it.offset = 0
	} else {
		it.offset += n
	}
	switch cur.Kind {
	case KindDelete:
		return Op{Kind: KindDelete, Count: n}
	case KindRetain:
		return Op{Kind: KindRetain, Count: n, Attrs: cur.Attrs}
	default: // insert
		r := []rune(cur.Text)
		return Op{Kind: KindInsert, Text: string(r[offset : offset+n]), Attrs: cur.Attrs}
	}
}
