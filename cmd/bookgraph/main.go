package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"github.com/vvakame/bookgraph/internal/config"
	"github.com/vvakame/bookgraph/internal/dataset"
	"github.com/vvakame/bookgraph/internal/gqlfun"
	"github.com/vvakame/bookgraph/internal/graph"
	"github.com/vvakame/bookgraph/internal/log"
	"github.com/vvakame/bookgraph/internal/server"
)

func main() {
	err := realMain()
	if err != nil {
		stdlog.Fatal(err)
	}
}

func realMain() error {
	return newApp().Run(os.Args)
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "bookgraph",
		Usage: "GraphQL API over a books and authors catalogue",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the GraphQL endpoint over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "YAML config file. $BOOKGRAPH_CONFIG and $PORT are used when omitted",
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address",
					},
					&cli.StringFlag{
						Name:  "dataset",
						Usage: "YAML catalogue replacing the built-in books",
					},
					&cli.IntFlag{
						Name:  "verbosity",
						Usage: "log verbosity",
					},
					&cli.BoolFlag{
						Name:  "playground",
						Usage: "serve the GraphQL playground",
					},
				},
				Action: serve,
			},
			{
				Name:      "query",
				Usage:     "execute a query against the catalogue and print the response",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dataset",
						Usage: "YAML catalogue replacing the built-in books",
					},
					&cli.StringFlag{
						Name:  "variables",
						Usage: "variables as a JSON object",
					},
					&cli.StringFlag{
						Name:  "operation",
						Usage: "operation name",
					},
				},
				Action: query,
			},
			{
				Name:  "schema",
				Usage: "print the GraphQL schema",
				Action: func(c *cli.Context) error {
					_, err := io.WriteString(c.App.Writer, graph.SDL())
					return err
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("dataset") {
		cfg.Dataset = c.String("dataset")
	}
	if c.IsSet("verbosity") {
		cfg.LogVerbosity = c.Int("verbosity")
	}
	if c.IsSet("playground") {
		cfg.Playground = c.Bool("playground")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadSchema(datasetPath string) (graphql.ExecutableSchema, error) {
	var store *dataset.Store
	if datasetPath != "" {
		var err error
		store, err = dataset.LoadFile(datasetPath)
		if err != nil {
			return nil, err
		}
	}

	return graph.New(store)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := log.NewStdLogger(cfg.LogVerbosity)
	ctx := log.WithLogger(c.Context, logger)

	es, err := loadSchema(cfg.Dataset)
	if err != nil {
		logger.Error(err, "failed to load schema")
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h, err := server.NewHandler(&server.Options{
		Schema:          es,
		Logger:          logger,
		Registry:        reg,
		Playground:      cfg.Playground,
		ComplexityLimit: cfg.ComplexityLimit,
		CORSOrigins:     cfg.CORSOrigins,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening server", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "failed to serve")
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown")
	}

	return nil
}

func query(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one QUERY argument is required")
	}

	es, err := loadSchema(c.String("dataset"))
	if err != nil {
		return err
	}

	variables := map[string]interface{}{}
	if v := c.String("variables"); v != "" {
		if err := json.Unmarshal([]byte(v), &variables); err != nil {
			return errors.Wrap(err, "failed to parse variables")
		}
	}

	ctx := log.WithLogger(c.Context, log.NewStdLogger(0))
	resp := gqlfun.Execute(ctx, es, &graphql.RawParams{
		Query:         c.Args().First(),
		OperationName: c.String("operation"),
		Variables:     variables,
	})

	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal response")
	}
	_, err = fmt.Fprintln(c.App.Writer, string(b))
	return err
}
