package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/s3mock/s3mock/internal/config"
	"github.com/s3mock/s3mock/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "s3mock",
		Short:   "s3mock - Local S3-compatible API emulator",
		Long:    "s3mock serves the S3 REST API against a local directory, for integration tests and offline development.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runServer,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("root", "r", "", "Storage root directory (default: a fresh directory under the system temp dir)")
	rootCmd.PersistentFlags().StringP("listen", "l", ":9090", "HTTP listen address")
	rootCmd.PersistentFlags().String("tls-listen", ":9191", "HTTPS listen address")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("enable-tls", false, "Enable the HTTPS listener")
	rootCmd.PersistentFlags().String("cert-file", "", "TLS certificate file")
	rootCmd.PersistentFlags().String("key-file", "", "TLS key file")
	rootCmd.PersistentFlags().Bool("retain-files-on-exit", false, "Keep the storage root on shutdown")
	rootCmd.PersistentFlags().String("region", "us-east-1", "Region reported in LocationConstraint responses")
	rootCmd.PersistentFlags().String("initial-buckets", "", "Comma-separated buckets created at startup")
	rootCmd.PersistentFlags().String("valid-kms-keys", "", "Comma-separated KMS key references accepted on SSE-KMS writes")

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)

	logrus.WithFields(logrus.Fields{
		"version": version,
		"root":    cfg.Root,
	}).Info("Starting s3mock")

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logrus.Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	logrus.Info("s3mock stopped")
	return nil
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
