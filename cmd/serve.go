package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"zeke-gateway/internal/config"
	"zeke-gateway/internal/metrics"
	"zeke-gateway/internal/provider"
	providerfactory "zeke-gateway/internal/provider/factory"
	"zeke-gateway/internal/router"
	"zeke-gateway/internal/server"
)

const serveUsage = `Usage:
  zeke-gateway serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional; built-in
                    defaults target a local Ollama backend)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
		return err
	}

	m := metrics.New()
	rt := router.New(registry, m)

	srv, err := server.New(cfg, rt, m)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
