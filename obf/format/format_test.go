package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veilc/veil/obf/ir"
)

func TestFormat(t *testing.T) {
	f := &ir.Func{Name: "demo", In: 1}

	b0 := &ir.Block{Name: "entry"}
	b1 := &ir.Block{Name: "body"}
	b2 := &ir.Block{Name: "done"}

	a := f.Alloc(ir.Arg(0))
	sl := f.Alloc(ir.Alloca{})
	st := f.Alloc(ir.Store{Slot: sl, Val: a})
	b0.Code = []ir.Expr{a, sl, st}
	b0.Term = ir.Jump{To: b1}

	ld := f.Alloc(ir.Load{Slot: sl})
	w := f.Alloc(ir.SExt{X: ld})
	m := f.Alloc(ir.And{L: w, R: ld})
	x := f.Alloc(ir.Xor{L: m, R: ld})
	b1.Code = []ir.Expr{ld, w, m, x}
	b1.Term = ir.Switch{
		Expr:    x,
		Default: b1,
		Cases:   []ir.Case{{Val: 0x2a, To: b2}},
	}

	b2.Term = ir.Ret{Val: ir.Nil}

	f.Blocks = []*ir.Block{b0, b1, b2}

	b, err := Format(context.Background(), nil, f)
	require.NoError(t, err)

	want := `func demo(1) {
entry:
  v0 = arg 0
  v1 = alloca
  store v1, v0
  jmp body
body:
  v2 = load v1
  v3 = sext v2
  v4 = and v3, v2
  v5 = xor v4, v2
  switch v5, default body, 0x2a: done
done:
  ret
}
`

	require.Equal(t, want, string(b))
}

func TestFormatUnnamedBlocks(t *testing.T) {
	f := &ir.Func{Name: "anon", In: 0}

	b0 := &ir.Block{}
	b1 := &ir.Block{}

	b0.Term = ir.Jump{To: b1}
	b1.Term = ir.Ret{Val: ir.Nil}

	f.Blocks = []*ir.Block{b0, b1}

	b, err := Format(context.Background(), nil, f)
	require.NoError(t, err)

	want := `func anon(0) {
b0:
  jmp b1
b1:
  ret
}
`

	require.Equal(t, want, string(b))
}
