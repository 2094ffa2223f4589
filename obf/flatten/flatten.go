package flatten

import (
	"context"
	mathrand "math/rand"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/veilc/veil/obf/ir"
	"github.com/veilc/veil/obf/legalize"
)

type (
	// Flattener rewrites a function so that all inter-block control
	// passes through a single dispatch loop driven by an opaque
	// stack-resident variable. Zero value is ready to use.
	Flattener struct {
		// Rand drives index assignment and block shuffling.
		// nil means a fresh entropy-seeded generator per call.
		Rand *mathrand.Rand

		Indices IndexPolicy

		// Legalizer repairs cross-block value uses once control is
		// rerouted through the dispatch loop. nil means legalize.Demote.
		Legalizer Legalizer
	}

	Legalizer interface {
		Legalize(ctx context.Context, f *ir.Func) error
	}
)

func New() *Flattener {
	return &Flattener{}
}

// Flatten transforms f in place. It reports false and leaves f untouched
// when f has an Unsupported terminator or nothing to flatten.
func (fl *Flattener) Flatten(ctx context.Context, f *ir.Func) (applied bool, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "flatten func", "name", f.Name, "blocks", len(f.Blocks))
	defer tr.Finish("applied", &applied, "err", &err)

	for _, b := range f.Blocks {
		if t, ok := b.Term.(ir.Unsupported); ok {
			tr.V("reject").Printw("unsupported terminator", "block", b.Name, "reason", t.Reason)

			return false, nil
		}
	}

	if len(f.Blocks) <= 1 {
		return false, nil
	}

	rnd := fl.Rand
	if rnd == nil {
		rnd = mathrand.New(mathrand.NewSource(entropySeed()))
	}

	entry := f.Blocks[0]

	disp := make([]*ir.Block, len(f.Blocks)-1)
	copy(disp, f.Blocks[1:])

	// entry must not branch: the decision moves into its own dispatchable block
	if tail := splitEntry(f, entry); tail != nil {
		disp = append([]*ir.Block{tail}, disp...)

		tr.V("split").Printw("entry split", "tail", tail.Name, "kept", len(entry.Code))
	} else if s := entry.Term.Succs(); len(s) != 1 || s[0] != disp[0] {
		// the dispatcher is seeded with the first dispatchable block,
		// so an unsplit entry must fall through to exactly that block
		tr.V("reject").Printw("entry does not fall through to the first block", "entry", entry.Name)

		return false, nil
	}

	idx := fl.assign(rnd, disp)
	perm := shuffled(rnd, disp)

	if tr.If("dump_indices") {
		for _, b := range disp {
			tr.Printw("dispatch index", "block", b.Name, "val", tlog.FormatNext("%#x"), idx[b])
		}
	}

	// original exits, captured before any rewiring
	term := make(map[*ir.Block]ir.Term, len(disp))
	for _, b := range disp {
		term[b] = b.Term
	}

	slot, header := synth(f, entry, disp, perm, idx)

	for _, b := range disp {
		rewrite(f, b, term[b], slot, header, idx)
	}

	// layout is presentation only: entry, dispatch header, cases in shuffled order
	blocks := make([]*ir.Block, 0, len(disp)+2)
	blocks = append(blocks, entry, header)
	blocks = append(blocks, perm...)
	f.Blocks = blocks

	lg := fl.Legalizer
	if lg == nil {
		lg = legalize.Demote{}
	}

	err = lg.Legalize(ctx, f)
	if err != nil {
		return false, errors.Wrap(err, "legalize")
	}

	return true, nil
}

// splitEntry carves the terminator, and the instruction feeding it if
// the entry has one, into a new block. The remainder of the entry falls
// through. Returns nil when the entry already exits unconditionally.
func splitEntry(f *ir.Func, entry *ir.Block) *ir.Block {
	if _, cond := entry.Term.(ir.Branch); !cond && len(entry.Term.Succs()) <= 1 {
		return nil
	}

	tail := &ir.Block{
		Name: entry.Name + ".first",
		Term: entry.Term,
	}

	if n := len(entry.Code); n > 0 {
		tail.Code = append(tail.Code, entry.Code[n-1])
		entry.Code = entry.Code[:n-1]
	}

	entry.Term = ir.Jump{To: tail}

	f.Blocks = append(f.Blocks, tail)

	return tail
}

// synth creates the dispatcher slot in the entry and the dispatch loop
// header. The slot is seeded with the index of the first dispatchable
// block in natural order, not shuffled order.
func synth(f *ir.Func, entry *ir.Block, disp, perm []*ir.Block, idx map[*ir.Block]uint32) (slot ir.Expr, header *ir.Block) {
	slot = f.Alloc(ir.Alloca{})
	init := f.Alloc(ir.Imm(idx[disp[0]]))
	st := f.Alloc(ir.Store{Slot: slot, Val: init})

	entry.Code = append(entry.Code, slot, init, st)

	header = &ir.Block{Name: "dispatch"}

	ld := f.Alloc(ir.Load{Slot: slot})
	header.Code = append(header.Code, ld)

	// unmatched value loops on the header instead of faulting
	sw := ir.Switch{Expr: ld, Default: header}

	for _, b := range perm {
		sw.Cases = append(sw.Cases, ir.Case{Val: idx[b], To: b})
	}

	header.Term = sw

	entry.Term = ir.Jump{To: header}

	return slot, header
}

// rewrite replaces the captured terminator of b with a branch-free
// dispatcher update followed by a jump back to the header.
// Returns are exit points and stay as they are.
func rewrite(f *ir.Func, b *ir.Block, t ir.Term, slot ir.Expr, header *ir.Block, idx map[*ir.Block]uint32) {
	var val ir.Expr

	switch t := t.(type) {
	case ir.Ret:
		return

	case ir.Jump:
		// degenerate form of the two-successor update below:
		// own ^ own ^ target
		own := f.Alloc(ir.Imm(idx[b]))
		own2 := f.Alloc(ir.Imm(idx[b]))
		zero := f.Alloc(ir.Xor{L: own, R: own2})
		to := f.Alloc(ir.Imm(idx[t.To]))
		val = f.Alloc(ir.Xor{L: zero, R: to})

		b.Code = append(b.Code, own, own2, zero, to, val)

	case ir.Branch:
		// sext(cond) & (then ^ else) ^ else selects without branching
		wide := f.Alloc(ir.SExt{X: t.Cond})
		diff := f.Alloc(ir.Imm(idx[t.Then] ^ idx[t.Else]))
		mask := f.Alloc(ir.And{L: wide, R: diff})
		els := f.Alloc(ir.Imm(idx[t.Else]))
		val = f.Alloc(ir.Xor{L: mask, R: els})

		b.Code = append(b.Code, wide, diff, mask, els, val)

	default:
		panic(t)
	}

	st := f.Alloc(ir.Store{Slot: slot, Val: val})
	b.Code = append(b.Code, st)

	b.Term = ir.Jump{To: header}
}
