package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/squadquiz/internal/api"
	"github.com/victornm/squadquiz/internal/archive"
	"github.com/victornm/squadquiz/internal/event"
	"github.com/victornm/squadquiz/internal/game"
	"github.com/victornm/squadquiz/internal/gateway"
	"github.com/victornm/squadquiz/internal/leaderboard"
	"github.com/victornm/squadquiz/internal/quiz"
	"github.com/victornm/squadquiz/internal/telemetry"
)

type Config struct {
	Log struct {
		Level string
	}

	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Game struct {
		QuizFile       string
		TimeLimit      time.Duration
		BonusSlots     int
		BonusFactor    int
		BarrierTimeout time.Duration
		EndedGrace     time.Duration
	}

	WebSocket struct {
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
		PingInterval   time.Duration
		MaxMessageSize int64
		RateLimit      float64
		Burst          int
	}

	Redis struct {
		Enabled bool
		Addrs   []string
		Pass    string
		Prefix  string
	}

	Postgres struct {
		Enabled bool
		Addr    string
		User    string
		Pass    string
		Name    string
	}
}

// DefaultConfig is the configuration used for every key the config file and environment leave unset.
func DefaultConfig() Config {
	var c Config
	c.Log.Level = "info"
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090

	gs := game.DefaultSettings()
	c.Game.TimeLimit = gs.TimeLimit
	c.Game.BonusSlots = gs.BonusSlots
	c.Game.BonusFactor = gs.BonusFactor
	c.Game.BarrierTimeout = gs.BarrierTimeout
	c.Game.EndedGrace = 10 * time.Second

	ws := gateway.DefaultConfig()
	c.WebSocket.ReadTimeout = ws.ReadTimeout
	c.WebSocket.WriteTimeout = ws.WriteTimeout
	c.WebSocket.PingInterval = ws.PingInterval
	c.WebSocket.MaxMessageSize = ws.MaxMessageSize
	c.WebSocket.RateLimit = ws.RateLimit
	c.WebSocket.Burst = ws.Burst

	c.Redis.Prefix = "squadquiz"
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		registry    *game.Registry
		leaderboard *leaderboard.Service
		archive     *archive.Service
	}

	hub  *gateway.Hub
	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if s.c.Redis.Enabled {
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if s.c.Postgres.Enabled {
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	bank := quiz.Default()
	if s.c.Game.QuizFile != "" {
		b, err := quiz.Load(s.c.Game.QuizFile)
		if err != nil {
			return err
		}
		bank = b
	}
	slog.Info("server: quiz loaded", "quiz", bank.Name, "questions", len(bank.Questions))

	s.service.registry = game.NewRegistry(game.RegistryConfig{
		Bank: bank,
		Settings: game.Settings{
			TimeLimit:      s.c.Game.TimeLimit,
			BonusSlots:     s.c.Game.BonusSlots,
			BonusFactor:    s.c.Game.BonusFactor,
			BarrierTimeout: s.c.Game.BarrierTimeout,
		},
		EventBus:   s.eb,
		EndedGrace: s.c.Game.EndedGrace,
	})

	if s.infra.redis != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis,
			Prefix:   s.c.Redis.Prefix,
		})
	}

	if s.infra.postgres != nil {
		s.service.archive = archive.NewService(archive.Config{
			DB:       s.infra.postgres,
			EventBus: s.eb,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.service.archive.Migrate(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.hub = gateway.NewHub(s.service.registry, gateway.Config{
		ReadTimeout:    s.c.WebSocket.ReadTimeout,
		WriteTimeout:   s.c.WebSocket.WriteTimeout,
		PingInterval:   s.c.WebSocket.PingInterval,
		MaxMessageSize: s.c.WebSocket.MaxMessageSize,
		RateLimit:      s.c.WebSocket.RateLimit,
		Burst:          s.c.WebSocket.Burst,
	})
	e.GET("/ws", s.hub.ServeWS)

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)

	c := api.Config{
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Registry:     s.service.registry,
		Leaderboard:  s.service.leaderboard,
		Archive:      s.service.archive,
		PubsubPrefix: s.c.Redis.Prefix,
	}
	// A nil client must not reach the interface field.
	if s.infra.redis != nil {
		c.Redis = s.infra.redis
	}
	a := api.New(c)
	a.RegisterHTTP(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	s.hub.Close()

	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
