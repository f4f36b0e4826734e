package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/victornm/squadquiz/internal/config"
	"github.com/victornm/squadquiz/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file loaded", "error", err)
	}

	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	setupLogger(c.Log.Level)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	c := server.DefaultConfig()

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

func setupLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		slog.Warn("Unknown log level, using info", "level", level)
		l = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}
