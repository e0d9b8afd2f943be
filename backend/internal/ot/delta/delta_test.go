package delta

import (
	"errors"
	"math/rand"
	"testing"
)

func mustApply(t *testing.T, content string, d Delta) string {
	t.Helper()
	out, err := Apply(content, d)
	if err != nil {
		t.Fatalf("Apply(%q, %+v) error = %v", content, d, err)
	}
	return out
}

func TestApply_Basic(t *testing.T) {
	d := Delta{
		{Kind: KindRetain, Count: 5},
		{Kind: KindInsert, Text: " collaborative"},
	}
	if got := mustApply(t, "Hello world", d); got != "Hello collaborative world" {
		t.Fatalf("Apply() = %q, want %q", got, "Hello collaborative world")
	}

	d = Delta{
		{Kind: KindRetain, Count: 5},
		{Kind: KindDelete, Count: 6},
	}
	if got := mustApply(t, "Hello world", d); got != "Hello" {
		t.Fatalf("Apply() = %q, want %q", got, "Hello")
	}
}

func TestApply_ImplicitTrailingRetain(t *testing.T) {
	d := Delta{{Kind: KindInsert, Text: ">> "}}
	if got := mustApply(t, "rest stays", d); got != ">> rest stays" {
		t.Fatalf("Apply() = %q, want %q", got, ">> rest stays")
	}
}

func TestApply_RuneOffsets(t *testing.T) {
	// 偏移按 rune 计，多字节字符不能按 byte 切
	d := Delta{
		{Kind: KindRetain, Count: 2},
		{Kind: KindInsert, Text: "，世界"},
	}
	if got := mustApply(t, "你好！", d); got != "你好，世界！" {
		t.Fatalf("Apply() = %q, want %q", got, "你好，世界！")
	}
}

func TestApply_OutOfBounds(t *testing.T) {
	cases := []Delta{
		{{Kind: KindRetain, Count: 6}},
		{{Kind: KindDelete, Count: 6}},
		{{Kind: KindRetain, Count: 3}, {Kind: KindDelete, Count: 3}},
	}
	for _, d := range cases {
		if _, err := Apply("hello", d); !errors.Is(err, ErrInvalidOperation) {
			t.Fatalf("Apply(hello, %+v) error = %v, want ErrInvalidOperation", d, err)
		}
	}
}

// 和 convergence fuzz 互补：固定几组典型的 OT 菱形，结果可人工核对
func TestTransform_Diamond(t *testing.T) {
	base := "abcdef"
	cases := []struct {
		name string
		a, b Delta
		want string // 两条路径共同收敛到的内容（a 优先）
	}{
		{
			name: "insert before delete",
			a:    Delta{{Kind: KindRetain, Count: 1}, {Kind: KindInsert, Text: "X"}},
			b:    Delta{{Kind: KindRetain, Count: 3}, {Kind: KindDelete, Count: 2}},
			want: "aXbcf",
		},
		{
			name: "insert inside delete range",
			a:    Delta{{Kind: KindRetain, Count: 2}, {Kind: KindInsert, Text: "X"}},
			b:    Delta{{Kind: KindRetain, Count: 1}, {Kind: KindDelete, Count: 4}},
			want: "aXf",
		},
		{
			name: "overlapping deletes",
			a:    Delta{{Kind: KindRetain, Count: 1}, {Kind: KindDelete, Count: 3}},
			b:    Delta{{Kind: KindRetain, Count: 2}, {Kind: KindDelete, Count: 3}},
			want: "af",
		},
		{
			name: "same position inserts, a first",
			a:    Delta{{Kind: KindRetain, Count: 3}, {Kind: KindInsert, Text: "AA"}},
			b:    Delta{{Kind: KindRetain, Count: 3}, {Kind: KindInsert, Text: "BB"}},
			want: "abcAABBdef",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			viaB := mustApply(t, mustApply(t, base, tc.b), Transform(tc.a, tc.b, true))
			viaA := mustApply(t, mustApply(t, base, tc.a), Transform(tc.b, tc.a, false))
			if viaB != viaA {
				t.Fatalf("diverged: via b = %q, via a = %q", viaB, viaA)
			}
			if viaB != tc.want {
				t.Fatalf("converged to %q, want %q", viaB, tc.want)
			}
		})
	}
}

// 同位置插入的排序完全由优先标志决定，重跑必须得到同一结果
func TestTransform_TieBreakDeterministic(t *testing.T) {
	opX := Delta{{Kind: KindInsert, Text: "hello"}}
	opY := Delta{{Kind: KindInsert, Text: "world"}}
	for i := 0; i < 10; i++ {
		got := mustApply(t, mustApply(t, "", opX), Transform(opY, opX, false))
		if got != "helloworld" {
			t.Fatalf("run %d: got %q, want %q", i, got, "helloworld")
		}
	}
}

const fuzzAlphabet = "abcdefghij"

func randomText(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = fuzzAlphabet[rng.Intn(len(fuzzAlphabet))]
	}
	return string(b)
}

// 生成一个对长度 n 的文档合法的随机 delta
func randomDelta(rng *rand.Rand, n int) Delta {
	var d Delta
	pos := 0
	for pos < n {
		remain := n - pos
		switch rng.Intn(3) {
		case 0:
			k := 1 + rng.Intn(remain)
			d = append(d, Op{Kind: KindRetain, Count: k})
			pos += k
		case 1:
			k := 1 + rng.Intn(remain)
			d = append(d, Op{Kind: KindDelete, Count: k})
			pos += k
		case 2:
			d = append(d, Op{Kind: KindInsert, Text: randomText(rng, 1+rng.Intn(4))})
		}
	}
	if rng.Intn(2) == 0 {
		d = append(d, Op{Kind: KindInsert, Text: randomText(rng, 1+rng.Intn(4))})
	}
	return d
}

// 收敛性质：对任意并发 (a, b)，两条变换路径得到同一内容
func TestTransform_ConvergenceFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		base := randomText(rng, 1+rng.Intn(20))
		a := randomDelta(rng, len(base))
		b := randomDelta(rng, len(base))
		viaB := mustApply(t, mustApply(t, base, b), Transform(a, b, true))
		viaA := mustApply(t, mustApply(t, base, a), Transform(b, a, false))
		if viaB != viaA {
			t.Fatalf("iter %d: diverged\nbase=%q\na=%+v\nb=%+v\nvia b=%q\nvia a=%q", i, base, a, b, viaB, viaA)
		}
	}
}

// Compose 性质：Apply(base, Compose(a,b)) == Apply(Apply(base,a), b)
func TestCompose_EquivalentToSequentialFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		base := randomText(rng, 1+rng.Intn(20))
		a := randomDelta(rng, len(base))
		mid := mustApply(t, base, a)
		b := randomDelta(rng, len(mid))
		sequential := mustApply(t, mid, b)
		composed := mustApply(t, base, Compose(a, b))
		if sequential != composed {
			t.Fatalf("iter %d: compose mismatch\nbase=%q\na=%+v\nb=%+v\nsequential=%q\ncomposed=%q", i, base, a, b, sequential, composed)
		}
	}
}

func TestInvert_RoundTripFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for i := 0; i < 200; i++ {
		base := randomText(rng, 1+rng.Intn(20))
		d := randomDelta(rng, len(base))
		after := mustApply(t, base, d)
		back := mustApply(t, after, Invert(d, base))
		if back != base {
			t.Fatalf("iter %d: invert mismatch\nbase=%q\nd=%+v\nafter=%q\nback=%q", i, base, d, after, back)
		}
	}
}

func TestBaseLen(t *testing.T) {
	d := Delta{
		{Kind: KindRetain, Count: 3},
		{Kind: KindInsert, Text: "xyz"},
		{Kind: KindDelete, Count: 2},
	}
	if got := BaseLen(d); got != 5 {
		t.Fatalf("BaseLen() = %d, want 5", got)
	}
	if got := TargetLen(d); got != 6 {
		t.Fatalf("TargetLen() = %d, want 6", got)
	}
}
