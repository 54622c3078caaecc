// Package main is the entry point for the chatgate server.
//
//	@title						chatgate API
//	@version					1.0
//	@description				Chat completion gateway routing provider:model identifiers to configured LLM providers.
//	@license.name				MIT
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Master key as "Bearer {key}"
package main

//go:generate swag init --dir ./,../../internal/server,../../internal/core,../../internal/usage --generalInfo main.go --output docs --outputTypes go

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgate/config"
	"chatgate/internal/app"
	"chatgate/internal/httpclient"
	"chatgate/internal/logging"
	"chatgate/internal/providers"
	"chatgate/internal/providers/anthropic"
	"chatgate/internal/providers/openai"
	"chatgate/internal/version"

	_ "chatgate/cmd/chatgate/docs"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	result, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := result.Config

	if _, err := logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level}); err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}

	slog.Info("starting chatgate",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
		"config_file", result.Path,
	)

	httpClient := httpclient.NewHTTPClient(httpclient.ClientConfig{
		Timeout:               time.Duration(cfg.HTTP.Timeout) * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.HTTP.ResponseHeaderTimeout) * time.Second,
	})
	factory := providers.NewProviderFactory(httpClient)
	factory.Add(openai.Registrations...)
	factory.Add(anthropic.Registration)

	application, err := app.New(context.Background(), app.Config{
		AppConfig: result,
		Factory:   factory,
	})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + cfg.Server.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	// Start returns once Shutdown closes the server; wait for the rest of
	// the teardown to flush usage entries.
	<-done
}
