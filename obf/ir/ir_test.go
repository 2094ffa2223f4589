package ir

import (
	"testing"
)

func TestSuccs(t *testing.T) {
	a := &Block{Name: "a"}
	b := &Block{Name: "b"}

	for _, tc := range []struct {
		t Term
		n int
	}{
		{Ret{Val: Nil}, 0},
		{Unsupported{}, 0},
		{Jump{To: a}, 1},
		{Branch{Cond: 0, Then: a, Else: b}, 2},
		{Switch{Expr: 0, Default: a, Cases: []Case{{Val: 1, To: b}}}, 2},
	} {
		if l := tc.t.Succs(); len(l) != tc.n {
			t.Errorf("%T: %d successors, want %d", tc.t, len(l), tc.n)
		}
	}
}

func TestMapOperands(t *testing.T) {
	shift := func(x Expr) Expr { return x + 10 }

	for _, tc := range []struct {
		in, out any
	}{
		{Add{L: 1, R: 2}, Add{L: 11, R: 12}},
		{Cmp{Cond: CondLt, L: 1, R: 2}, Cmp{Cond: CondLt, L: 11, R: 12}},
		{SExt{X: 3}, SExt{X: 13}},
		{Store{Slot: 1, Val: 2}, Store{Slot: 1, Val: 12}}, // slot is an address, kept as is
		{Load{Slot: 1}, Load{Slot: 1}},
		{Imm(4), Imm(4)},
		{Alloca{}, Alloca{}},
	} {
		if got := MapOperands(tc.in, shift); got != tc.out {
			t.Errorf("%T: got %v, want %v", tc.in, got, tc.out)
		}
	}
}

func TestTermOperands(t *testing.T) {
	if l := TermOperands(Ret{Val: Nil}); len(l) != 0 {
		t.Errorf("void ret reads %v", l)
	}

	if l := TermOperands(Ret{Val: 5}); len(l) != 1 || l[0] != 5 {
		t.Errorf("ret reads %v", l)
	}

	if l := TermOperands(Branch{Cond: 7}); len(l) != 1 || l[0] != 7 {
		t.Errorf("branch reads %v", l)
	}
}
