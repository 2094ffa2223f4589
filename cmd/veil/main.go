package main

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"os"
	"strconv"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/veilc/veil/obf/flatten"
	"github.com/veilc/veil/obf/format"
	"github.com/veilc/veil/obf/interp"
	"github.com/veilc/veil/obf/ir"
	"github.com/veilc/veil/obf/parse"
)

func main() {
	flattenCmd := &cli.Command{
		Name:   "flatten",
		Action: flattenAct,
		Args:   cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("seed", 0, "random seed, 0 means fresh entropy"),
			cli.NewFlag("unchecked", false, "keep dispatch index collisions, as the original pass did"),
		},
	}

	runCmd := &cli.Command{
		Name:   "run",
		Action: runAct,
		Args:   cli.Args{},
	}

	fmtCmd := &cli.Command{
		Name:   "fmt",
		Action: fmtAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "veil",
		Description: "veil flattens control flow of functions given in a textual cfg form",
		Commands: []*cli.Command{
			flattenCmd,
			runCmd,
			fmtCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func flattenAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	fl := flatten.New()

	if seed := c.Int("seed"); seed != 0 {
		fl.Rand = mathrand.New(mathrand.NewSource(int64(seed)))
	}

	if c.Bool("unchecked") {
		fl.Indices = flatten.IndependentIndices
	}

	for _, a := range c.Args {
		funcs, err := parse.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		for _, f := range funcs {
			applied, err := fl.Flatten(ctx, f)
			if err != nil {
				return errors.Wrap(err, "flatten %v", f.Name)
			}

			if !applied {
				tlog.Printw("not applicable", "func", f.Name)
			}
		}

		b, err := format.Format(ctx, nil, funcs)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		fmt.Printf("%s", b)
	}

	return nil
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if len(c.Args) == 0 {
		return errors.New("file expected")
	}

	funcs, err := parse.ParseFile(ctx, c.Args[0])
	if err != nil {
		return errors.Wrap(err, "parse %v", c.Args[0])
	}

	if len(funcs) == 0 {
		return errors.New("no funcs in %v", c.Args[0])
	}

	args := make([]ir.Word, 0, len(c.Args)-1)

	for _, a := range c.Args[1:] {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return errors.Wrap(err, "arg %v", a)
		}

		args = append(args, ir.Word(v))
	}

	res, err := interp.Run(ctx, funcs[0], args)
	if err != nil {
		return errors.Wrap(err, "run %v", funcs[0].Name)
	}

	for _, v := range res.Trace {
		fmt.Printf("emit %d\n", int64(v))
	}

	fmt.Printf("ret %d in %v after %d blocks\n", int64(res.Ret), res.Block.Name, res.Steps)

	return nil
}

func fmtAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		funcs, err := parse.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		b, err := format.Format(ctx, nil, funcs)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		fmt.Printf("%s", b)
	}

	return nil
}
