// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/avkotov/railways/internal/cache"
	"github.com/avkotov/railways/internal/handlers"
	"github.com/avkotov/railways/internal/session"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	// Persistence is optional: without Redis the server still runs, games
	// just do not survive a restart.
	storage, err := cache.ConnectRedis(context.Background())
	if err != nil {
		logger.Warnf("running without persistence: %v", err)
		storage = nil
	}

	store := session.NewStore(storage, logger)
	defer store.Close()

	server := &http.Server{
		Handler:     handlers.NewServeMux(logger, store),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: it would kill long-lived WebSocket connections.
	}

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server.Addr = addr
	logger.Infof("listening on %s", addr)

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Fatalf("server exited: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
