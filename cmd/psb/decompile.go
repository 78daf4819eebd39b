package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/psbkit/internal/batch"
	"github.com/samcharles93/psbkit/internal/convert"
)

func decompileCmd() *cli.Command {
	return &cli.Command{
		Name:      "decompile",
		Aliases:   []string{"d"},
		Usage:     "Convert PSB or MDF files to an editable tree",
		ArgsUsage: "FILE...",
		Before:    setup,
		Flags:     append(decompileFlags(), outDirFlag()),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.NArg() == 0 {
				return cli.Exit("error: decompile needs at least one file", 2)
			}
			applyDecompileConfig(c, cfg)
			opts, err := decompileOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}

			return eachFile(ctx, c, "decompiled", func(ctx context.Context, in string) (string, error) {
				return batch.Decompile(ctx, in, opts)
			})
		},
	}
}

func decompileOptions() (batch.DecompileOptions, error) {
	switch treeFormat {
	case batch.FormatJSON, batch.FormatYAML, batch.FormatCBOR:
	case "yml":
		treeFormat = batch.FormatYAML
	default:
		return batch.DecompileOptions{}, fmt.Errorf("unknown format %q", treeFormat)
	}
	mode, err := convert.ParseResourceMode(resources)
	if err != nil {
		return batch.DecompileOptions{}, err
	}
	dir, err := resolveOutDir(outDir)
	if err != nil {
		return batch.DecompileOptions{}, err
	}
	return batch.DecompileOptions{
		Format:         treeFormat,
		Resources:      mode,
		OutDir:         dir,
		VerifyChecksum: verify,
	}, nil
}
