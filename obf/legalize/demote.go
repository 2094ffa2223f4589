package legalize

import (
	"context"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/veilc/veil/obf/ir"
	"github.com/veilc/veil/obf/set"
)

type (
	// Demote restores definition-dominates-use by pushing every value
	// that crosses a block boundary through a stack slot: a store right
	// after the definition, a load in front of each remote use.
	// It does not compute dominance. Demoting all cross-block values is
	// conservative and correct on any control flow graph.
	Demote struct{}

	state struct {
		f *ir.Func

		home  map[ir.Expr]*ir.Block
		slots map[ir.Expr]ir.Expr
	}
)

func (Demote) Legalize(ctx context.Context, f *ir.Func) (err error) {
	tr := tlog.SpanFromContext(ctx)

	s := &state{
		f:     f,
		home:  make(map[ir.Expr]*ir.Block, len(f.Exprs)),
		slots: make(map[ir.Expr]ir.Expr),
	}

	for _, b := range f.Blocks {
		for _, id := range b.Code {
			s.home[id] = b
		}
	}

	cross := set.MakeBitmap(len(f.Exprs))

	for _, b := range f.Blocks {
		mark := func(op ir.Expr) {
			if h, ok := s.home[op]; ok && h != b {
				cross.Set(int(op))
			}
		}

		for _, id := range b.Code {
			for _, op := range ir.Operands(f.Exprs[id]) {
				mark(op)
			}
		}

		for _, op := range ir.TermOperands(b.Term) {
			mark(op)
		}
	}

	if cross.Size() == 0 {
		return nil
	}

	tr.V("demote").Printw("cross-block values", "count", cross.Size(), "ids", cross)

	// one slot per escaping value, all slots in front of the entry code
	allocas := make([]ir.Expr, 0, cross.Size())

	cross.Range(func(i int) bool {
		sl := f.Alloc(ir.Alloca{})

		s.slots[ir.Expr(i)] = sl
		allocas = append(allocas, sl)

		return true
	})

	entry := f.Entry()
	entry.Code = append(allocas, entry.Code...)
	for _, sl := range allocas {
		s.home[sl] = entry
	}

	for _, b := range f.Blocks {
		code := make([]ir.Expr, 0, len(b.Code))

		for _, id := range b.Code {
			f.Exprs[id] = ir.MapOperands(f.Exprs[id], func(op ir.Expr) ir.Expr {
				code, op = s.reroute(code, b, op)
				return op
			})

			code = append(code, id)

			if sl, ok := s.slots[id]; ok {
				code = append(code, f.Alloc(ir.Store{Slot: sl, Val: id}))
			}
		}

		b.Term = ir.MapTermOperands(b.Term, func(op ir.Expr) ir.Expr {
			code, op = s.reroute(code, b, op)
			return op
		})

		b.Code = code
	}

	return nil
}

// reroute replaces a remote operand with a load from its slot,
// appending the load to the rebuilt code of b.
func (s *state) reroute(code []ir.Expr, b *ir.Block, op ir.Expr) ([]ir.Expr, ir.Expr) {
	sl, ok := s.slots[op]
	if !ok || s.home[op] == b {
		return code, op
	}

	ld := s.f.Alloc(ir.Load{Slot: sl})
	code = append(code, ld)

	tlog.V("demote").Printw("use rerouted", "id", op, "slot", sl, "block", b.Name, "from", loc.Caller(2))

	return code, ld
}
