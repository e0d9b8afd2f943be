package collab

import (
	"fmt"

	"syncServer/backend/internal/ot/delta"
)

type bufferKind int

const (
	// iota：在 const (...) 里从 0 开始自动递增，bufOriginal = 0, bufAdd = 1
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	// 指针标签，表示从 original 还是 add 切片上偏移
	buf    bufferKind
	offset int
	length int
}

// PieceTable：初始内容放 original，后续插入只往 add 追加，
// 编辑只改 piece 列表，不搬动文本本身。
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	out := make([]rune, 0, pt.Len())
	for _, p := range pt.pieces {
		switch p.buf {
		case bufOriginal:
			out = append(out, pt.original[p.offset:p.offset+p.length]...)
		case bufAdd:
			out = append(out, pt.add[p.offset:p.offset+p.length]...)
		}
	}
	return string(out)
}

// Apply 把一个 delta 作用到 piece 表上。
// 先整体校验再落盘：delta 的 retain/delete 总长超过文档长度就直接拒绝，
// 保证不会出现应用到一半失败、内容停在中间态的情况。
func (pt *PieceTable) Apply(d delta.Delta) error {
	if need := delta.BaseLen(d); need > pt.Len() {
		return fmt.Errorf("%w: delta needs %d but document has %d", delta.ErrInvalidOperation, need, pt.Len())
	}
	pos := 0
	// retain: 沿 piece 列表向前移动 pos；
	// insert: 在 pos 处拆分并插入新 piece；
	// delete: 从 pos 起调整/合并 piece。
	for _, op := range d {
		switch op.Kind {
		case delta.KindRetain:
			pos += op.Count

		case delta.KindInsert:
			text := []rune(op.Text)
			if len(text) == 0 {
				continue
			}
			start := len(pt.add)
			pt.add = append(pt.add, text...)
			newPiece := piece{buf: bufAdd, offset: start, length: len(text)}

			idx, offset := pt.locate(pos)
			if idx < len(pt.pieces) {
				cur := pt.pieces[idx]
				left := piece{buf: cur.buf, offset: cur.offset, length: offset}
				right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

				// 只替换目标 piece，前后段原样拼回
				newPieces := make([]piece, 0, len(pt.pieces)+2)
				newPieces = append(newPieces, pt.pieces[:idx]...)
				if left.length > 0 {
					newPieces = append(newPieces, left)
				}
				newPieces = append(newPieces, newPiece)
				if right.length > 0 {
					newPieces = append(newPieces, right)
				}
				newPieces = append(newPieces, pt.pieces[idx+1:]...)
				pt.pieces = newPieces
			} else {
				pt.pieces = append(pt.pieces, newPiece)
			}
			pos += len(text)

		case delta.KindDelete:
			remain := op.Count
			idx, offset := pt.locate(pos)

			for remain > 0 && idx < len(pt.pieces) {
				cur := &pt.pieces[idx]
				can := cur.length - offset
				if can <= 0 {
					idx++
					offset = 0
					continue
				}

				take := remain
				if take > can {
					take = can
				}

				if offset == 0 && take == cur.length {
					// 整个 piece 删掉，idx 不动（此位置已是下一个 piece）
					pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
				} else {
					// 删中间一段：拆成左右两段
					leftLen := offset
					rightLen := cur.length - offset - take

					newPieces := make([]piece, 0, len(pt.pieces)+1)
					newPieces = append(newPieces, pt.pieces[:idx]...)
					if leftLen > 0 {
						newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
					}
					if rightLen > 0 {
						newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
					}
					newPieces = append(newPieces, pt.pieces[idx+1:]...)
					pt.pieces = newPieces
				}

				remain -= take
			}
		}
	}
	return nil
}

// 根据逻辑位置 pos 找到 piece 下标 idx 和该 piece 内的偏移 offset
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
