package collab

import (
	"errors"
	"testing"

	"syncServer/backend/internal/ot/delta"
)

func TestPieceTable_BasicString(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if got := pt.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if gotLen := pt.Len(); gotLen != len([]rune("Hello world")) {
		t.Fatalf("Len() = %d, want %d", gotLen, len([]rune("Hello world")))
	}
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	pt := NewPieceTable("Hello world")

	d := delta.Delta{
		{Kind: delta.KindRetain, Count: 5},               // 跳过 "Hello"
		{Kind: delta.KindInsert, Text: " collaborative"}, // 在 pos=5 插入
	}

	if err := pt.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello collaborative world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteMiddle(t *testing.T) {
	pt := NewPieceTable("Hello collaborative world")

	// 保留 "Hello"，然后删 " collaborative"
	d := delta.Delta{
		{Kind: delta.KindRetain, Count: 5},
		{Kind: delta.KindDelete, Count: 14},
	}

	if err := pt.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteAcrossPieces(t *testing.T) {
	pt := NewPieceTable("Hello world")
	// 先插一段，让 piece 表拆成多段，再跨段删除
	if err := pt.Apply(delta.Delta{
		{Kind: delta.KindRetain, Count: 5},
		{Kind: delta.KindInsert, Text: "XYZ"},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := pt.Apply(delta.Delta{
		{Kind: delta.KindRetain, Count: 3},
		{Kind: delta.KindDelete, Count: 7}, // "loXYZ w"
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := "Helorld"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_RejectsOutOfBounds(t *testing.T) {
	pt := NewPieceTable("hello")
	d := delta.Delta{{Kind: delta.KindDelete, Count: 6}}
	if err := pt.Apply(d); !errors.Is(err, delta.ErrInvalidOperation) {
		t.Fatalf("Apply() error = %v, want ErrInvalidOperation", err)
	}
	// 全有或全无：失败后内容不变
	if got := pt.String(); got != "hello" {
		t.Fatalf("String() after failed Apply = %q, want %q", got, "hello")
	}
}

// piece 表和纯函数 Apply 必须给出相同结果
func TestPieceTable_MatchesPureApply(t *testing.T) {
	base := "The quick brown fox"
	deltas := []delta.Delta{
		{{Kind: delta.KindRetain, Count: 4}, {Kind: delta.KindInsert, Text: "very "}},
		{{Kind: delta.KindRetain, Count: 9}, {Kind: delta.KindDelete, Count: 6}},
		{{Kind: delta.KindInsert, Text: ">> "}},
		{{Kind: delta.KindRetain, Count: 2}, {Kind: delta.KindDelete, Count: 1}, {Kind: delta.KindInsert, Text: "!"}},
	}

	pt := NewPieceTable(base)
	pure := base
	for i, d := range deltas {
		if err := pt.Apply(d); err != nil {
			t.Fatalf("step %d: piece table Apply() error = %v", i, err)
		}
		var err error
		pure, err = delta.Apply(pure, d)
		if err != nil {
			t.Fatalf("step %d: pure Apply() error = %v", i, err)
		}
		if pt.String() != pure {
			t.Fatalf("step %d: piece table %q != pure apply %q", i, pt.String(), pure)
		}
	}
}
