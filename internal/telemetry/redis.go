package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments the client with otel tracing and metrics, debug logs and
// a per-command prometheus counter.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisHook{})
	return nil
}

type redisHook struct{}

func (redisHook) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("redis: dial %s %s failed", network, addr), "error", err)
			return nil, err
		}
		slog.DebugContext(ctx, fmt.Sprintf("redis: dialed %s %s", network, addr))
		return conn, nil
	}
}

func (redisHook) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := hook(ctx, cmd)
		observeRedis(ctx, cmd.Name(), err)
		return err
	}
}

func (redisHook) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := hook(ctx, cmds)
		for _, cmd := range cmds {
			observeRedis(ctx, cmd.Name(), cmd.Err())
		}
		return err
	}
}

func observeRedis(ctx context.Context, name string, err error) {
	result := "ok"
	if err != nil && err != redis.Nil {
		result = "error"
		slog.WarnContext(ctx, fmt.Sprintf("redis: <%s> failed", name), "error", err)
	}
	RedisCommands.WithLabelValues(name, result).Inc()
}
