package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/veilc/veil/obf/ir"
)

type (
	names struct {
		val   map[ir.Expr]int
		block map[*ir.Block]string
	}
)

func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	switch x := x.(type) {
	case *ir.Func:
		return formatFunc(ctx, b, x)
	case []*ir.Func:
		var err error

		for i, f := range x {
			if i != 0 {
				b = append(b, '\n')
			}

			b, err = formatFunc(ctx, b, f)
			if err != nil {
				return nil, errors.Wrap(err, "func %v", f.Name)
			}
		}

		return b, nil
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatFunc(ctx context.Context, b []byte, f *ir.Func) (_ []byte, err error) {
	n := rename(f)

	b = hfmt.Appendf(b, "func %s(%d) {\n", f.Name, f.In)

	for _, blk := range f.Blocks {
		b = hfmt.Appendf(b, "%s:\n", n.block[blk])

		for _, id := range blk.Code {
			b, err = formatInstr(b, f, n, id)
			if err != nil {
				return nil, errors.Wrap(err, "%s: %v", n.block[blk], id)
			}
		}

		b, err = formatTerm(b, n, blk.Term)
		if err != nil {
			return nil, errors.Wrap(err, "%s: terminator", n.block[blk])
		}
	}

	b = append(b, "}\n"...)

	return b, nil
}

// rename numbers values and blocks in order of appearance, so output is
// stable no matter how sparse the function's id space became.
func rename(f *ir.Func) names {
	n := names{
		val:   make(map[ir.Expr]int),
		block: make(map[*ir.Block]string),
	}

	for i, blk := range f.Blocks {
		if blk.Name != "" {
			n.block[blk] = blk.Name
		} else {
			n.block[blk] = hname(i)
		}

		for _, id := range blk.Code {
			switch f.Exprs[id].(type) {
			case ir.Store, ir.Emit:
			default:
				n.val[id] = len(n.val)
			}
		}
	}

	return n
}

func hname(i int) string {
	return string(hfmt.Appendf(nil, "b%d", i))
}

func formatInstr(b []byte, f *ir.Func, n names, id ir.Expr) ([]byte, error) {
	v := func(x ir.Expr) int { return n.val[x] }

	switch x := f.Exprs[id].(type) {
	case ir.Arg:
		b = hfmt.Appendf(b, "  v%d = arg %d\n", v(id), int(x))
	case ir.Imm:
		b = hfmt.Appendf(b, "  v%d = imm %d\n", v(id), uint64(x))
	case ir.Add:
		b = hfmt.Appendf(b, "  v%d = add v%d, v%d\n", v(id), v(x.L), v(x.R))
	case ir.Sub:
		b = hfmt.Appendf(b, "  v%d = sub v%d, v%d\n", v(id), v(x.L), v(x.R))
	case ir.Mul:
		b = hfmt.Appendf(b, "  v%d = mul v%d, v%d\n", v(id), v(x.L), v(x.R))
	case ir.And:
		b = hfmt.Appendf(b, "  v%d = and v%d, v%d\n", v(id), v(x.L), v(x.R))
	case ir.Xor:
		b = hfmt.Appendf(b, "  v%d = xor v%d, v%d\n", v(id), v(x.L), v(x.R))
	case ir.Cmp:
		b = hfmt.Appendf(b, "  v%d = cmp %s v%d, v%d\n", v(id), string(x.Cond), v(x.L), v(x.R))
	case ir.SExt:
		b = hfmt.Appendf(b, "  v%d = sext v%d\n", v(id), v(x.X))
	case ir.Alloca:
		b = hfmt.Appendf(b, "  v%d = alloca\n", v(id))
	case ir.Load:
		b = hfmt.Appendf(b, "  v%d = load v%d\n", v(id), v(x.Slot))
	case ir.Store:
		b = hfmt.Appendf(b, "  store v%d, v%d\n", v(x.Slot), v(x.Val))
	case ir.Emit:
		b = hfmt.Appendf(b, "  emit v%d\n", v(x.Val))
	default:
		return nil, errors.New("unsupported op: %T", x)
	}

	return b, nil
}

func formatTerm(b []byte, n names, t ir.Term) ([]byte, error) {
	switch t := t.(type) {
	case ir.Ret:
		if t.Val == ir.Nil {
			b = append(b, "  ret\n"...)
		} else {
			b = hfmt.Appendf(b, "  ret v%d\n", n.val[t.Val])
		}
	case ir.Jump:
		b = hfmt.Appendf(b, "  jmp %s\n", n.block[t.To])
	case ir.Branch:
		b = hfmt.Appendf(b, "  br v%d, %s, %s\n", n.val[t.Cond], n.block[t.Then], n.block[t.Else])
	case ir.Switch:
		b = hfmt.Appendf(b, "  switch v%d, default %s", n.val[t.Expr], n.block[t.Default])

		for _, c := range t.Cases {
			b = hfmt.Appendf(b, ", %#x: %s", c.Val, n.block[c.To])
		}

		b = append(b, '\n')
	case ir.Unsupported:
		if t.Reason == "" {
			b = append(b, "  unsupported\n"...)
		} else {
			b = hfmt.Appendf(b, "  unsupported %s\n", t.Reason)
		}
	default:
		return nil, errors.New("unsupported terminator: %T", t)
	}

	return b, nil
}
