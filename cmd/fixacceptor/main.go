package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/fixgate/internal/admin"
	"github.com/danmuck/fixgate/internal/config"
	"github.com/danmuck/fixgate/internal/engine"
	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/store"
)

func main() {
	path := flag.String("config", "cmd/fixacceptor/config.toml", "acceptor config path")
	quiet := flag.Bool("quiet", false, "do not print application messages")
	flag.Parse()

	if err := run(*path, *quiet); err != nil {
		fmt.Fprintf(os.Stderr, "fixacceptor: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, quiet bool) error {
	logs.ConfigureRuntime()
	cfg, err := config.Load(path, config.RoleAcceptor)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	var app engine.Application = engine.NewConsoleApplication(os.Stdout)
	if quiet {
		app = engine.NopApplication{}
	}
	registry := engine.NewRegistry()
	acceptor, err := engine.NewAcceptor(cfg.Acceptor(), st, app, registry)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	running := 1
	go func() { errc <- acceptor.Run(ctx) }()
	if cfg.AdminAddr != "" {
		running++
		srv := admin.New(cfg.ID, cfg.AdminAddr, registry, cfg.CorsOrigins)
		go func() { errc <- srv.Run(ctx) }()
	}

	var errs []error
	for range running {
		if err := <-errc; err != nil {
			errs = append(errs, err)
			stop()
		}
	}
	return errors.Join(errs...)
}
