package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/psbkit/internal/api"
	"github.com/samcharles93/psbkit/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxBody     int64
		maxDecoded  int64
		maxDocs     int64
	)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the PSB conversion API",
		Before: setup,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "largest accepted request body in bytes",
				Value:       256 << 20,
				Destination: &maxBody,
			},
			&cli.Int64Flag{
				Name:        "max-decoded",
				Usage:       "largest accepted MDF payload after decompression in bytes",
				Value:       1 << 30,
				Destination: &maxDecoded,
			},
			&cli.Int64Flag{
				Name:        "max-documents",
				Usage:       "documents kept in memory before the oldest is evicted",
				Value:       64,
				Destination: &maxDocs,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			applyServeConfig(c, cfg, &addr, &maxBody, &maxDocs)
			log := logger.FromContext(ctx)

			server := api.NewServer(api.Config{
				MaxBodyBytes:    maxBody,
				MaxDecodedBytes: maxDecoded,
				MaxDocuments:    int(maxDocs),
				Logger:          log,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
