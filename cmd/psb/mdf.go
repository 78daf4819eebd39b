package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/psbkit/internal/batch"
	"github.com/samcharles93/psbkit/internal/logger"
)

func mdfCmd() *cli.Command {
	return &cli.Command{
		Name:  "mdf",
		Usage: "Wrap or unwrap compressed MDF containers",
		Commands: []*cli.Command{
			{
				Name:      "pack",
				Usage:     "Compress PSB files into FILE.mdf",
				ArgsUsage: "FILE...",
				Before:    setup,
				Flags:     []cli.Flag{mdfLevelFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					applyMDFLevelConfig(c, cfg)
					if mdfLevel < 0 || mdfLevel > 9 {
						return cli.Exit(fmt.Sprintf("error: mdf level %d out of range 0-9", mdfLevel), 2)
					}
					return eachFile(ctx, c, "packed", func(ctx context.Context, in string) (string, error) {
						return batch.Pack(ctx, in, int(mdfLevel))
					})
				},
			},
			{
				Name:      "unpack",
				Usage:     "Decompress MDF files next to the input",
				ArgsUsage: "FILE...",
				Before:    setup,
				Action: func(ctx context.Context, c *cli.Command) error {
					return eachFile(ctx, c, "unpacked", batch.Unpack)
				},
			},
		},
	}
}

// eachFile runs task over the command's arguments in order and stops at
// the first failure.
func eachFile(ctx context.Context, c *cli.Command, verb string, task batch.Task) error {
	if c.NArg() == 0 {
		return cli.Exit(fmt.Sprintf("error: %s needs at least one file", c.Name), 2)
	}
	log := logger.FromContext(ctx)
	for _, in := range c.Args().Slice() {
		out, err := task(ctx, in)
		if err != nil {
			return cli.Exit(fmt.Sprintf("error: %v", err), 1)
		}
		log.Info(verb, "input", in, "output", out)
	}
	return nil
}
