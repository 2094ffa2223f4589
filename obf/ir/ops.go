package ir

func (x Arg) In() []Expr    { return nil }
func (x Imm) In() []Expr    { return nil }
func (x Alloca) In() []Expr { return nil }

func (x Add) In() []Expr { return []Expr{x.L, x.R} }
func (x Sub) In() []Expr { return []Expr{x.L, x.R} }
func (x Mul) In() []Expr { return []Expr{x.L, x.R} }
func (x And) In() []Expr { return []Expr{x.L, x.R} }
func (x Xor) In() []Expr { return []Expr{x.L, x.R} }
func (x Cmp) In() []Expr { return []Expr{x.L, x.R} }

func (x SExt) In() []Expr  { return []Expr{x.X} }
func (x Load) In() []Expr  { return []Expr{x.Slot} }
func (x Store) In() []Expr { return []Expr{x.Slot, x.Val} }
func (x Emit) In() []Expr  { return []Expr{x.Val} }

// Operands returns the value ids an instruction payload reads.
// The Slot of Load and Store is an address, not a data dependency,
// so it is not included.
func Operands(x any) []Expr {
	switch x := x.(type) {
	case Load:
		return nil
	case Store:
		return []Expr{x.Val}
	case interface{ In() []Expr }:
		return x.In()
	}

	return nil
}

// MapOperands rebuilds a payload with every data operand passed through f.
func MapOperands(x any, f func(Expr) Expr) any {
	switch x := x.(type) {
	case Add:
		return Add{L: f(x.L), R: f(x.R)}
	case Sub:
		return Sub{L: f(x.L), R: f(x.R)}
	case Mul:
		return Mul{L: f(x.L), R: f(x.R)}
	case And:
		return And{L: f(x.L), R: f(x.R)}
	case Xor:
		return Xor{L: f(x.L), R: f(x.R)}
	case Cmp:
		return Cmp{Cond: x.Cond, L: f(x.L), R: f(x.R)}
	case SExt:
		return SExt{X: f(x.X)}
	case Store:
		return Store{Slot: x.Slot, Val: f(x.Val)}
	case Emit:
		return Emit{Val: f(x.Val)}
	}

	return x
}

// TermOperands returns the value ids a terminator reads.
func TermOperands(t Term) []Expr {
	switch t := t.(type) {
	case Ret:
		if t.Val == Nil {
			return nil
		}

		return []Expr{t.Val}
	case Branch:
		return []Expr{t.Cond}
	case Switch:
		return []Expr{t.Expr}
	}

	return nil
}

// MapTermOperands rebuilds a terminator with its value operands passed through f.
func MapTermOperands(t Term, f func(Expr) Expr) Term {
	switch t := t.(type) {
	case Ret:
		if t.Val == Nil {
			return t
		}

		return Ret{Val: f(t.Val)}
	case Branch:
		return Branch{Cond: f(t.Cond), Then: t.Then, Else: t.Else}
	case Switch:
		return Switch{Expr: f(t.Expr), Default: t.Default, Cases: t.Cases}
	}

	return t
}
