package ir

import (
	"tlog.app/go/tlog/tlwire"
)

type (
	Expr int
	Word uint64
	Cond string

	Arg int
	Imm Word

	Add struct{ L, R Expr }
	Sub struct{ L, R Expr }
	Mul struct{ L, R Expr }
	And struct{ L, R Expr }
	Xor struct{ L, R Expr }

	Cmp struct {
		Cond Cond
		L, R Expr
	}

	SExt struct {
		X Expr
	}

	Alloca struct{}

	Load struct {
		Slot Expr
	}

	Store struct {
		Slot Expr
		Val  Expr
	}

	Emit struct {
		Val Expr
	}

	Func struct {
		Name string
		In   int

		Exprs  []any
		Blocks []*Block
	}

	Block struct {
		Name string

		Code []Expr
		Term Term
	}

	Term interface {
		Succs() []*Block
	}

	Ret struct {
		Val Expr
	}

	Jump struct {
		To *Block
	}

	Branch struct {
		Cond Expr

		Then, Else *Block
	}

	Switch struct {
		Expr    Expr
		Default *Block
		Cases   []Case
	}

	Case struct {
		Val uint32
		To  *Block
	}

	Unsupported struct {
		Reason string
	}
)

const Nil Expr = -1

const (
	CondEq Cond = "eq"
	CondNe Cond = "ne"
	CondLt Cond = "lt"
	CondLe Cond = "le"
	CondGt Cond = "gt"
	CondGe Cond = "ge"
)

func (f *Func) Entry() *Block {
	return f.Blocks[0]
}

func (f *Func) Alloc(x any) Expr {
	id := Expr(len(f.Exprs))
	f.Exprs = append(f.Exprs, x)

	return id
}

func (f *Func) BlockOf(b *Block) int {
	for i, x := range f.Blocks {
		if x == b {
			return i
		}
	}

	return -1
}

func (t Ret) Succs() []*Block    { return nil }
func (t Jump) Succs() []*Block   { return []*Block{t.To} }
func (t Branch) Succs() []*Block { return []*Block{t.Then, t.Else} }

func (t Switch) Succs() []*Block {
	l := []*Block{t.Default}

	for _, c := range t.Cases {
		l = append(l, c.To)
	}

	return l
}

func (t Unsupported) Succs() []*Block { return nil }

func (c Case) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if c.To == nil {
		return e.AppendNil(b)
	}

	return e.AppendFormat(b, "%#x_%s", c.Val, c.To.Name)
}
