// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chapo-dev/chapo/internal/log"
	"github.com/chapo-dev/chapo/pkg/app"
	"github.com/chapo-dev/chapo/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if format, _ := cmd.Flags().GetString("log-format"); format != "" {
			cfg.Logging.Format = format
		}

		logger, err := log.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		log.SetLogger(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, cfg, logger, nil)
		if err != nil {
			return fmt.Errorf("wiring the server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- application.Start(ctx) }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return application.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "listener host (overrides config)")
	serveCmd.Flags().Int("port", 0, "listener port (overrides config)")
	serveCmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	serveCmd.Flags().String("log-format", "", "log format (console, json)")
}
