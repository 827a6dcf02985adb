// Command kvstore runs the RESP-compatible in-memory key-value server: a
// sharded concurrent hashtable fronted by a fiber-scheduled, per-worker
// network loop, with an optional background snapshot writer for crash
// recovery.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"kvstore/config"
	"kvstore/logger"
	"kvstore/server"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}

	if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
		logger.Warn("config: invalid log level %q: %v", cfg.LogLevel, err)
	}
	logger.Configure()

	srv, err := server.New(cfg)
	if err != nil {
		logger.Error("server: %v", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	srv.Stop()
}
