package interp

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/veilc/veil/obf/ir"
)

type (
	Machine struct {
		// Fuel caps block transfers. A flattened function whose
		// dispatcher falls into its default self-loop would otherwise
		// spin forever.
		Fuel int
	}

	Result struct {
		Ret   ir.Word
		Block *ir.Block // the return block that was reached
		Trace []ir.Word
		Steps int
	}
)

const DefaultFuel = 1 << 16

func Run(ctx context.Context, f *ir.Func, args []ir.Word) (Result, error) {
	return Machine{}.Run(ctx, f, args)
}

func (m Machine) Run(ctx context.Context, f *ir.Func, args []ir.Word) (res Result, err error) {
	tr := tlog.SpanFromContext(ctx)

	if len(args) != f.In {
		return res, errors.New("want %d args, got %d", f.In, len(args))
	}

	fuel := m.Fuel
	if fuel == 0 {
		fuel = DefaultFuel
	}

	vals := make([]ir.Word, len(f.Exprs))
	slots := make(map[ir.Expr]ir.Word)

	b := f.Entry()

	for {
		if res.Steps == fuel {
			return res, errors.New("fuel exhausted in %v after %d blocks", b.Name, res.Steps)
		}

		res.Steps++

		tr.V("exec").Printw("exec block", "block", b.Name)

		for _, id := range b.Code {
			switch x := f.Exprs[id].(type) {
			case ir.Arg:
				vals[id] = args[x]
			case ir.Imm:
				vals[id] = ir.Word(x)
			case ir.Add:
				vals[id] = vals[x.L] + vals[x.R]
			case ir.Sub:
				vals[id] = vals[x.L] - vals[x.R]
			case ir.Mul:
				vals[id] = vals[x.L] * vals[x.R]
			case ir.And:
				vals[id] = vals[x.L] & vals[x.R]
			case ir.Xor:
				vals[id] = vals[x.L] ^ vals[x.R]
			case ir.Cmp:
				vals[id], err = cmp(x.Cond, vals[x.L], vals[x.R])
				if err != nil {
					return res, errors.Wrap(err, "%v: %v", b.Name, id)
				}
			case ir.SExt:
				if vals[x.X] != 0 {
					vals[id] = ^ir.Word(0)
				} else {
					vals[id] = 0
				}
			case ir.Alloca:
				slots[id] = 0
			case ir.Load:
				vals[id] = slots[x.Slot]
			case ir.Store:
				slots[x.Slot] = vals[x.Val]
			case ir.Emit:
				res.Trace = append(res.Trace, vals[x.Val])
			default:
				return res, errors.New("%v: %v: unsupported op %T", b.Name, id, x)
			}
		}

		switch t := b.Term.(type) {
		case ir.Ret:
			if t.Val != ir.Nil {
				res.Ret = vals[t.Val]
			}

			res.Block = b

			return res, nil
		case ir.Jump:
			b = t.To
		case ir.Branch:
			if vals[t.Cond] != 0 {
				b = t.Then
			} else {
				b = t.Else
			}
		case ir.Switch:
			b = t.Default

			// first matching case wins
			for _, c := range t.Cases {
				if ir.Word(c.Val) == vals[t.Expr] {
					b = c.To
					break
				}
			}
		case ir.Unsupported:
			return res, errors.New("%v: unsupported terminator: %v", b.Name, t.Reason)
		default:
			return res, errors.New("%v: bad terminator: %T", b.Name, t)
		}
	}
}

// cmp compares words as signed values and yields 1 or 0.
func cmp(c ir.Cond, l, r ir.Word) (ir.Word, error) {
	a, b := int64(l), int64(r)

	var res bool

	switch c {
	case ir.CondEq:
		res = a == b
	case ir.CondNe:
		res = a != b
	case ir.CondLt:
		res = a < b
	case ir.CondLe:
		res = a <= b
	case ir.CondGt:
		res = a > b
	case ir.CondGe:
		res = a >= b
	default:
		return 0, errors.New("bad cond: %q", c)
	}

	if res {
		return 1, nil
	}

	return 0, nil
}
