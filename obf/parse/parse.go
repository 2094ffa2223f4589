package parse

import (
	"context"
	"os"
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"github.com/veilc/veil/obf/ir"
)

type (
	parser struct {
		f *ir.Func

		val     map[string]ir.Expr
		defined map[string]bool

		blk     map[string]*ir.Block
		labeled map[string]bool

		cur *ir.Block
	}
)

func ParseFile(ctx context.Context, name string) ([]*ir.Func, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(ctx, data)
}

// Parse reads the textual control flow graph form produced by format.Format.
func Parse(ctx context.Context, text []byte) (funcs []*ir.Func, err error) {
	var p *parser

	lines := strings.Split(string(text), "\n")

	for i, raw := range lines {
		line := strings.TrimSpace(raw)

		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "func "):
			if p != nil {
				err = errors.New("func inside func")
				break
			}

			p, err = newParser(line)
		case line == "}":
			if p == nil {
				err = errors.New("unexpected closing brace")
				break
			}

			err = p.finish()
			if err == nil {
				funcs = append(funcs, p.f)
				p = nil
			}
		case strings.HasSuffix(line, ":"):
			if p == nil {
				err = errors.New("label outside of func")
				break
			}

			err = p.label(strings.TrimSuffix(line, ":"))
		default:
			if p == nil {
				err = errors.New("instruction outside of func")
				break
			}

			err = p.instr(line)
		}

		if err != nil {
			return nil, errors.Wrap(err, "line %d", i+1)
		}
	}

	if p != nil {
		return nil, errors.New("unterminated func %v", p.f.Name)
	}

	return funcs, nil
}

func newParser(line string) (*parser, error) {
	head, ok := strings.CutPrefix(line, "func ")
	if !ok {
		return nil, errors.New("bad func header")
	}

	head, ok = strings.CutSuffix(strings.TrimSpace(head), "{")
	if !ok {
		return nil, errors.New("func header misses opening brace")
	}

	name, rest, ok := strings.Cut(strings.TrimSpace(head), "(")
	if !ok {
		return nil, errors.New("func header misses arguments")
	}

	rest, ok = strings.CutSuffix(strings.TrimSpace(rest), ")")
	if !ok {
		return nil, errors.New("func header misses closing paren")
	}

	in, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return nil, errors.Wrap(err, "arguments count")
	}

	p := &parser{
		f: &ir.Func{
			Name: strings.TrimSpace(name),
			In:   in,
		},

		val:     map[string]ir.Expr{},
		defined: map[string]bool{},
		blk:     map[string]*ir.Block{},
		labeled: map[string]bool{},
	}

	return p, nil
}

func (p *parser) finish() error {
	if p.cur != nil && p.cur.Term == nil {
		return errors.New("block %v has no terminator", p.cur.Name)
	}

	if len(p.f.Blocks) == 0 {
		return errors.New("func %v has no blocks", p.f.Name)
	}

	for name := range p.blk {
		if !p.labeled[name] {
			return errors.New("undefined block %v", name)
		}
	}

	for name := range p.val {
		if !p.defined[name] {
			return errors.New("undefined value %v", name)
		}
	}

	return nil
}

func (p *parser) label(name string) error {
	if p.cur != nil && p.cur.Term == nil {
		return errors.New("block %v has no terminator", p.cur.Name)
	}

	if p.labeled[name] {
		return errors.New("duplicate block %v", name)
	}

	p.labeled[name] = true
	p.cur = p.block(name)

	p.f.Blocks = append(p.f.Blocks, p.cur)

	return nil
}

func (p *parser) instr(line string) (err error) {
	if p.cur == nil {
		return errors.New("instruction before the first label")
	}
	if p.cur.Term != nil {
		return errors.New("instruction after terminator")
	}

	if lhs, rhs, ok := strings.Cut(line, "="); ok {
		name := strings.TrimSpace(lhs)

		x, err := p.payload(strings.TrimSpace(rhs))
		if err != nil {
			return err
		}

		id, err := p.define(name)
		if err != nil {
			return err
		}

		p.f.Exprs[id] = x
		p.cur.Code = append(p.cur.Code, id)

		return nil
	}

	op, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch op {
	case "store", "emit":
		x, err := p.payload(line)
		if err != nil {
			return err
		}

		p.cur.Code = append(p.cur.Code, p.f.Alloc(x))
	case "ret":
		if rest == "" {
			p.cur.Term = ir.Ret{Val: ir.Nil}
			break
		}

		p.cur.Term = ir.Ret{Val: p.value(rest)}
	case "jmp":
		p.cur.Term = ir.Jump{To: p.block(rest)}
	case "br":
		args := split(rest, 3)
		if args == nil {
			return errors.New("br wants cond and two targets")
		}

		p.cur.Term = ir.Branch{Cond: p.value(args[0]), Then: p.block(args[1]), Else: p.block(args[2])}
	case "switch":
		p.cur.Term, err = p.parseSwitch(rest)
		if err != nil {
			return err
		}
	case "unsupported":
		p.cur.Term = ir.Unsupported{Reason: rest}
	default:
		return errors.New("unknown op: %q", op)
	}

	return nil
}

func (p *parser) parseSwitch(rest string) (ir.Term, error) {
	parts := strings.Split(rest, ",")
	if len(parts) < 2 {
		return nil, errors.New("switch wants a value and a default")
	}

	def, ok := strings.CutPrefix(strings.TrimSpace(parts[1]), "default ")
	if !ok {
		return nil, errors.New("switch wants a default target")
	}

	t := ir.Switch{
		Expr:    p.value(strings.TrimSpace(parts[0])),
		Default: p.block(strings.TrimSpace(def)),
	}

	for _, c := range parts[2:] {
		vs, bs, ok := strings.Cut(strings.TrimSpace(c), ":")
		if !ok {
			return nil, errors.New("switch case wants value: target")
		}

		v, err := strconv.ParseUint(strings.TrimSpace(vs), 0, 32)
		if err != nil {
			return nil, errors.Wrap(err, "switch case value")
		}

		t.Cases = append(t.Cases, ir.Case{Val: uint32(v), To: p.block(strings.TrimSpace(bs))})
	}

	return t, nil
}

func (p *parser) payload(rhs string) (any, error) {
	op, rest, _ := strings.Cut(rhs, " ")
	rest = strings.TrimSpace(rest)

	switch op {
	case "arg":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return nil, errors.Wrap(err, "arg index")
		}

		return ir.Arg(n), nil
	case "imm":
		v, err := strconv.ParseUint(rest, 0, 64)
		if err != nil {
			return nil, errors.Wrap(err, "imm value")
		}

		return ir.Imm(v), nil
	case "add", "sub", "mul", "and", "xor":
		args := split(rest, 2)
		if args == nil {
			return nil, errors.New("%v wants two operands", op)
		}

		l, r := p.value(args[0]), p.value(args[1])

		switch op {
		case "add":
			return ir.Add{L: l, R: r}, nil
		case "sub":
			return ir.Sub{L: l, R: r}, nil
		case "mul":
			return ir.Mul{L: l, R: r}, nil
		case "and":
			return ir.And{L: l, R: r}, nil
		default:
			return ir.Xor{L: l, R: r}, nil
		}
	case "cmp":
		cond, ops, ok := strings.Cut(rest, " ")
		if !ok {
			return nil, errors.New("cmp wants cond and two operands")
		}

		args := split(ops, 2)
		if args == nil {
			return nil, errors.New("cmp wants two operands")
		}

		return ir.Cmp{Cond: ir.Cond(cond), L: p.value(args[0]), R: p.value(args[1])}, nil
	case "sext":
		return ir.SExt{X: p.value(rest)}, nil
	case "alloca":
		return ir.Alloca{}, nil
	case "load":
		return ir.Load{Slot: p.value(rest)}, nil
	case "store":
		args := split(rest, 2)
		if args == nil {
			return nil, errors.New("store wants slot and value")
		}

		return ir.Store{Slot: p.value(args[0]), Val: p.value(args[1])}, nil
	case "emit":
		return ir.Emit{Val: p.value(rest)}, nil
	default:
		return nil, errors.New("unknown op: %q", op)
	}
}

// value resolves a value name, allocating a placeholder on forward reference.
func (p *parser) value(name string) ir.Expr {
	if id, ok := p.val[name]; ok {
		return id
	}

	id := p.f.Alloc(nil)
	p.val[name] = id

	return id
}

func (p *parser) define(name string) (ir.Expr, error) {
	if p.defined[name] {
		return ir.Nil, errors.New("duplicate value %v", name)
	}

	p.defined[name] = true

	return p.value(name), nil
}

// block resolves a block name, creating the block on forward reference.
// The block joins Func.Blocks when its label is reached.
func (p *parser) block(name string) *ir.Block {
	if b, ok := p.blk[name]; ok {
		return b
	}

	b := &ir.Block{Name: name}
	p.blk[name] = b

	return b
}

func split(s string, n int) []string {
	l := strings.Split(s, ",")
	if len(l) != n {
		return nil
	}

	for i := range l {
		l[i] = strings.TrimSpace(l[i])
	}

	return l
}
