package main

import (
	"context"
	"fmt"
	"os"

	gojson "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/psbkit/internal/batch"
	"github.com/samcharles93/psbkit/internal/logger"
)

func batchCmd() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Run a conversion over many files in parallel",
		Commands: []*cli.Command{
			batchSubCmd("decompile", "Decompile every matching file",
				append(decompileFlags(), outDirFlag()),
				func(c *cli.Command) (batch.Task, error) {
					applyDecompileConfig(c, cfg)
					opts, err := decompileOptions()
					if err != nil {
						return nil, err
					}
					return func(ctx context.Context, in string) (string, error) {
						return batch.Decompile(ctx, in, opts)
					}, nil
				}),
			batchSubCmd("compile", "Compile every matching tree",
				append(compileFlags(), outDirFlag()),
				func(c *cli.Command) (batch.Task, error) {
					applyCompileConfig(c, cfg)
					opts, err := compileOptions()
					if err != nil {
						return nil, err
					}
					return func(ctx context.Context, in string) (string, error) {
						return batch.Compile(ctx, in, opts)
					}, nil
				}),
			batchSubCmd("pack", "MDF-compress every matching file",
				[]cli.Flag{mdfLevelFlag()},
				func(c *cli.Command) (batch.Task, error) {
					applyMDFLevelConfig(c, cfg)
					level := int(mdfLevel)
					return func(ctx context.Context, in string) (string, error) {
						return batch.Pack(ctx, in, level)
					}, nil
				}),
			batchSubCmd("unpack", "Decompress every matching MDF file", nil,
				func(c *cli.Command) (batch.Task, error) {
					return batch.Unpack, nil
				}),
		},
	}
}

// batchSubCmd builds one batch operation. Arguments are glob patterns.
func batchSubCmd(name, usage string, flags []cli.Flag, task func(c *cli.Command) (batch.Task, error)) *cli.Command {
	var (
		workers  int64
		failFast bool
		report   string
	)

	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "PATTERN...",
		Before:    setup,
		Flags: append(flags,
			&cli.Int64Flag{
				Name:        "workers",
				Aliases:     []string{"j"},
				Usage:       "parallel jobs (0 = GOMAXPROCS)",
				Destination: &workers,
			},
			&cli.BoolFlag{
				Name:        "fail-fast",
				Usage:       "stop scheduling jobs after the first failure",
				Destination: &failFast,
			},
			&cli.StringFlag{
				Name:        "report",
				Usage:       "write a JSON run report to this path (- for stdout)",
				Destination: &report,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.NArg() == 0 {
				return cli.Exit(fmt.Sprintf("error: batch %s needs at least one pattern", name), 2)
			}
			applyBatchConfig(c, cfg, &workers)
			inputs, err := batch.Expand(c.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			t, err := task(c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}

			runner := batch.Runner{Workers: int(workers), FailFast: failFast}
			rep, runErr := runner.Run(ctx, inputs, t)
			if rep != nil && report != "" {
				if err := writeReport(report, rep); err != nil {
					logger.FromContext(ctx).Error("write report", "path", report, "error", err)
				}
			}
			if runErr != nil {
				return cli.Exit(fmt.Sprintf("error: %v", runErr), 1)
			}
			if rep.Failed > 0 {
				return cli.Exit(fmt.Sprintf("error: %v (%d of %d)", batch.ErrFailed, rep.Failed, len(inputs)), 1)
			}
			return nil
		},
	}
}

func writeReport(path string, rep *batch.Report) error {
	b, err := gojson.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "-" {
		_, err = stdout.Write(b)
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("report %s: %w", path, err)
	}
	return nil
}
