package xtransport

import (
	"context"
	"fmt"
	"time"

	"github.com/omeyang/logship/pkg/config/xconf"
	"github.com/omeyang/logship/pkg/observability/xrotate"
	"github.com/omeyang/logship/pkg/resilience/xretry"
)

// Build 按管道配置构建全部 transport 并装入管道。
// 配置了 offload 的 sink 在此完成提升；任一 sink 构建失败时，
// 已建成的 sink 会被关闭后再返回错误。
func Build(ctx context.Context, cfg *xconf.Pipeline, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, xconf.ErrNoSinks
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transports := make([]*Transport, 0, len(cfg.Sinks))
	fail := func(err error) (*Pipeline, error) {
		for _, t := range transports {
			_ = t.Close(ctx)
		}
		return nil, err
	}

	for i := range cfg.Sinks {
		sink := &cfg.Sinks[i]
		t, err := buildSink(sink, opts...)
		if err != nil {
			return fail(fmt.Errorf("sink[%d]: %w", i, err))
		}
		if sink.Offload {
			if err := t.RunAsWorker(ctx); err != nil {
				_ = t.Close(ctx)
				return fail(fmt.Errorf("sink[%d]: offload: %w", i, err))
			}
		}
		transports = append(transports, t)
	}
	return NewPipeline(transports...), nil
}

// buildSink 按判别标签构建单个 transport，分支穷尽。
func buildSink(sink *xconf.Sink, opts ...Option) (*Transport, error) {
	if sink.Name != "" {
		opts = append(opts, WithName(sink.Name))
	}
	if sink.Retry != nil {
		opts = append(opts, WithRetry(buildRetry(sink.Retry)))
	}

	switch sink.Kind {
	case xconf.SinkConsole:
		return NewConsole(ConsoleConfig{
			UseQueue:    sink.UseQueue,
			Concurrency: sink.Concurrency,
		}, opts...)

	case xconf.SinkFile:
		return NewFile(FileConfig{
			Path:          sink.Path,
			BatchSize:     sink.BatchSize,
			FlushInterval: time.Duration(sink.FlushIntervalMS) * time.Millisecond,
			Rotation:      buildRotation(sink.Rotation),
		}, opts...)

	case xconf.SinkHTTP:
		auth, err := buildAuth(sink.Auth)
		if err != nil {
			return nil, err
		}
		return NewHTTP(HTTPConfig{
			Endpoint:      sink.Endpoint,
			BatchSize:     sink.BatchSize,
			FlushInterval: time.Duration(sink.FlushIntervalMS) * time.Millisecond,
			Concurrency:   sink.Concurrency,
			Auth:          auth,
		}, opts...)

	default:
		return nil, fmt.Errorf("%w: %q", xconf.ErrUnknownSinkKind, sink.Kind)
	}
}

func buildRetry(cfg *xconf.Retry) *xretry.Executor {
	return xretry.New(
		xretry.WithMaxRetry(cfg.MaxRetry),
		xretry.WithBaseDelay(time.Duration(cfg.BaseDelayMS)*time.Millisecond),
		xretry.WithMaxDelay(time.Duration(cfg.MaxDelayMS)*time.Millisecond),
		xretry.WithAttemptTimeout(time.Duration(cfg.AttemptTimeoutMS)*time.Millisecond),
	)
}

func buildRotation(cfg *xconf.Rotation) *xrotate.Policy {
	if cfg == nil {
		return nil
	}
	p := &xrotate.Policy{
		MaxBytes: cfg.MaxBytes,
		MaxFiles: cfg.MaxFiles,
		Compress: cfg.Compress,
	}
	switch cfg.Interval {
	case xconf.IntervalHourly:
		p.Interval = xrotate.IntervalHourly
	case xconf.IntervalDaily:
		p.Interval = xrotate.IntervalDaily
	default:
		p.Interval = xrotate.IntervalNone
	}
	return p
}

// buildAuth 按判别标签构建认证策略，分支穷尽。
func buildAuth(cfg *xconf.Auth) (AuthStrategy, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Kind {
	case xconf.AuthBearer:
		return NewBearerAuth(cfg.Token), nil
	case xconf.AuthBasic:
		return NewBasicAuth(cfg.Username, cfg.Password), nil
	case xconf.AuthHeader:
		return NewHeaderAuth(cfg.Name, cfg.Value), nil
	case xconf.AuthQuery:
		return NewQueryAuth(cfg.Name, cfg.Value), nil
	default:
		return nil, fmt.Errorf("%w: %q", xconf.ErrUnknownAuthKind, cfg.Kind)
	}
}
