package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/psbkit/internal/convert"
	"github.com/samcharles93/psbkit/internal/logger"
)

var (
	logLevel   string
	logFormat  string
	debug      bool
	configFile string

	// Shared by decompile, compile and batch.
	outDir     string
	treeFormat string
	resources  string
	verify     bool
	psbVersion int64
	mdf        bool
	mdfLevel   int64
	dedup      bool

	// Loaded once per invocation by setup.
	cfg Config
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Sources:     cli.EnvVars(envConfigPath),
			Destination: &configFile,
		},
	}
}

func outDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "out-dir",
		Aliases:     []string{"o"},
		Usage:       "write outputs to this directory instead of next to the input",
		Destination: &outDir,
	}
}

func decompileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       "tree format (json, yaml, cbor)",
			Value:       "json",
			Destination: &treeFormat,
		},
		&cli.StringFlag{
			Name:        "resources",
			Usage:       "resource handling (external, inline)",
			Value:       string(convert.ResourceExternal),
			Destination: &resources,
		},
		&cli.BoolFlag{
			Name:        "verify",
			Usage:       "reject headers with a bad checksum",
			Destination: &verify,
		},
	}
}

func compileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "version",
			Aliases:     []string{"v"},
			Usage:       "header version to write (2, 3, 4); 0 uses the manifest or 3",
			Destination: &psbVersion,
		},
		mdfFlag(),
		mdfLevelFlag(),
		&cli.BoolFlag{
			Name:        "dedup",
			Usage:       "share resources with identical bytes",
			Destination: &dedup,
		},
	}
}

func mdfFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:        "mdf",
		Usage:       "wrap the output in a compressed MDF container",
		Destination: &mdf,
	}
}

func mdfLevelFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:        "mdf-level",
		Usage:       "zlib level for MDF output (0 = default, 1-9)",
		Destination: &mdfLevel,
	}
}

// setup loads the config file and installs the logger into the context.
// Leaf commands run it as their Before hook so flags given after the
// command name are already parsed.
func setup(ctx context.Context, c *cli.Command) (context.Context, error) {
	cfg = LoadConfig(configFile)
	applyLogConfig(c, cfg)

	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 2)
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	return logger.WithContext(ctx, logger.Open(os.Stderr, format, level)), nil
}
