package interp

import (
	"context"
	"strings"
	"testing"

	"github.com/veilc/veil/obf/ir"
)

func TestArith(t *testing.T) {
	f := &ir.Func{Name: "arith", In: 2}

	b := &ir.Block{Name: "b0"}

	x := f.Alloc(ir.Arg(0))
	y := f.Alloc(ir.Arg(1))
	s := f.Alloc(ir.Add{L: x, R: y})
	d := f.Alloc(ir.Sub{L: s, R: y})
	m := f.Alloc(ir.Mul{L: d, R: s})
	b.Code = []ir.Expr{x, y, s, d, m}
	b.Term = ir.Ret{Val: m}

	f.Blocks = []*ir.Block{b}

	res, err := Run(context.Background(), f, []ir.Word{3, 4})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Ret != 21 {
		t.Errorf("ret: %d, want 21", res.Ret)
	}

	if res.Block != b {
		t.Errorf("returned from unexpected block")
	}
}

func TestSlots(t *testing.T) {
	f := &ir.Func{Name: "slots", In: 1}

	b := &ir.Block{Name: "b0"}

	x := f.Alloc(ir.Arg(0))
	sl := f.Alloc(ir.Alloca{})
	st := f.Alloc(ir.Store{Slot: sl, Val: x})
	ld := f.Alloc(ir.Load{Slot: sl})
	e := f.Alloc(ir.Emit{Val: ld})
	b.Code = []ir.Expr{x, sl, st, ld, e}
	b.Term = ir.Ret{Val: ld}

	f.Blocks = []*ir.Block{b}

	res, err := Run(context.Background(), f, []ir.Word{11})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Ret != 11 || len(res.Trace) != 1 || res.Trace[0] != 11 {
		t.Errorf("ret %d trace %v", res.Ret, res.Trace)
	}
}

func TestBranch(t *testing.T) {
	f := &ir.Func{Name: "brt", In: 1}

	b0 := &ir.Block{Name: "b0"}
	bt := &ir.Block{Name: "bt"}
	bf := &ir.Block{Name: "bf"}

	x := f.Alloc(ir.Arg(0))
	z := f.Alloc(ir.Imm(0))
	c := f.Alloc(ir.Cmp{Cond: ir.CondLt, L: x, R: z})
	b0.Code = []ir.Expr{x, z, c}
	b0.Term = ir.Branch{Cond: c, Then: bt, Else: bf}

	one := f.Alloc(ir.Imm(1))
	bt.Code = []ir.Expr{one}
	bt.Term = ir.Ret{Val: one}

	two := f.Alloc(ir.Imm(2))
	bf.Code = []ir.Expr{two}
	bf.Term = ir.Ret{Val: two}

	f.Blocks = []*ir.Block{b0, bt, bf}

	// signed comparison
	res, err := Run(context.Background(), f, []ir.Word{^ir.Word(0)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Ret != 1 {
		t.Errorf("-1 < 0: ret %d, want 1", res.Ret)
	}

	res, err = Run(context.Background(), f, []ir.Word{5})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Ret != 2 {
		t.Errorf("5 < 0: ret %d, want 2", res.Ret)
	}
}

func TestSwitchFirstMatchWins(t *testing.T) {
	f := &ir.Func{Name: "sw", In: 1}

	b0 := &ir.Block{Name: "b0"}
	b1 := &ir.Block{Name: "b1"}
	b2 := &ir.Block{Name: "b2"}
	def := &ir.Block{Name: "def"}

	x := f.Alloc(ir.Arg(0))
	b0.Code = []ir.Expr{x}
	b0.Term = ir.Switch{
		Expr:    x,
		Default: def,
		Cases: []ir.Case{
			{Val: 7, To: b1},
			{Val: 7, To: b2}, // same value: insertion order breaks the tie
		},
	}

	one := f.Alloc(ir.Imm(1))
	b1.Code = []ir.Expr{one}
	b1.Term = ir.Ret{Val: one}

	two := f.Alloc(ir.Imm(2))
	b2.Code = []ir.Expr{two}
	b2.Term = ir.Ret{Val: two}

	three := f.Alloc(ir.Imm(3))
	def.Code = []ir.Expr{three}
	def.Term = ir.Ret{Val: three}

	f.Blocks = []*ir.Block{b0, b1, b2, def}

	res, err := Run(context.Background(), f, []ir.Word{7})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Ret != 1 {
		t.Errorf("tie: ret %d, want 1", res.Ret)
	}

	res, err = Run(context.Background(), f, []ir.Word{8})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Ret != 3 {
		t.Errorf("default: ret %d, want 3", res.Ret)
	}
}

func TestFuel(t *testing.T) {
	f := &ir.Func{Name: "spin", In: 0}

	b := &ir.Block{Name: "b0"}
	z := f.Alloc(ir.Imm(1))
	b.Code = []ir.Expr{z}
	b.Term = ir.Switch{Expr: z, Default: b} // self-loop on unmatched value

	f.Blocks = []*ir.Block{b}

	m := Machine{Fuel: 100}

	_, err := m.Run(context.Background(), f, nil)
	if err == nil {
		t.Fatalf("want fuel exhaustion")
	}

	if !strings.Contains(err.Error(), "fuel") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUnsupportedTerminator(t *testing.T) {
	f := &ir.Func{Name: "bad", In: 0}

	b := &ir.Block{Name: "b0", Term: ir.Unsupported{Reason: "unwind"}}
	f.Blocks = []*ir.Block{b}

	_, err := Run(context.Background(), f, nil)
	if err == nil {
		t.Fatalf("want error")
	}
}
