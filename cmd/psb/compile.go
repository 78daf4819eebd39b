package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/psbkit/internal/batch"
	"github.com/samcharles93/psbkit/pkg/psb"
)

func compileCmd() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Aliases:   []string{"c"},
		Usage:     "Build PSB files from decompiled trees",
		ArgsUsage: "FILE...",
		Before:    setup,
		Flags:     append(compileFlags(), outDirFlag()),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.NArg() == 0 {
				return cli.Exit("error: compile needs at least one file", 2)
			}
			applyCompileConfig(c, cfg)
			opts, err := compileOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}

			return eachFile(ctx, c, "compiled", func(ctx context.Context, in string) (string, error) {
				return batch.Compile(ctx, in, opts)
			})
		},
	}
}

func compileOptions() (batch.CompileOptions, error) {
	if psbVersion != 0 {
		if psbVersion < 0 || psbVersion > 0xffff {
			return batch.CompileOptions{}, fmt.Errorf("unsupported version %d", psbVersion)
		}
		if _, ok := psb.HeaderLength(uint16(psbVersion)); !ok {
			return batch.CompileOptions{}, fmt.Errorf("unsupported version %d", psbVersion)
		}
	}
	if mdfLevel < 0 || mdfLevel > 9 {
		return batch.CompileOptions{}, fmt.Errorf("mdf level %d out of range 0-9", mdfLevel)
	}
	dir, err := resolveOutDir(outDir)
	if err != nil {
		return batch.CompileOptions{}, err
	}
	return batch.CompileOptions{
		Version:        uint16(psbVersion),
		MDF:            mdf,
		MDFLevel:       int(mdfLevel),
		DedupResources: dedup,
		OutDir:         dir,
	}, nil
}
