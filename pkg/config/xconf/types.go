package xconf

import "fmt"

// SinkKind sink 种类判别标签。
type SinkKind string

// 支持的 sink 种类。
const (
	SinkConsole SinkKind = "console"
	SinkFile    SinkKind = "file"
	SinkHTTP    SinkKind = "http"
)

// AuthKind 认证方式判别标签。
type AuthKind string

// 支持的认证方式。
const (
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthHeader AuthKind = "header"
	AuthQuery  AuthKind = "query"
)

// 轮转时间桶取值。
const (
	IntervalNone   = "none"
	IntervalHourly = "hourly"
	IntervalDaily  = "daily"
)

// Retry 重试小节，时间字段以毫秒计。
type Retry struct {
	MaxRetry         int `koanf:"max_retry"`
	BaseDelayMS      int `koanf:"base_delay_ms"`
	MaxDelayMS       int `koanf:"max_delay_ms"`
	AttemptTimeoutMS int `koanf:"attempt_timeout_ms"`
}

// Rotation 文件轮转小节。
type Rotation struct {
	MaxBytes int64  `koanf:"max_bytes"`
	Interval string `koanf:"interval"`
	MaxFiles int    `koanf:"max_files"`
	Compress bool   `koanf:"compress"`
}

func (r *Rotation) validate() error {
	switch r.Interval {
	case "", IntervalNone, IntervalHourly, IntervalDaily:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownInterval, r.Interval)
	}
}

// Auth HTTP 认证小节，字段按 kind 取用。
type Auth struct {
	Kind AuthKind `koanf:"kind"`

	// bearer
	Token string `koanf:"token"`

	// basic
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// header / query
	Name  string `koanf:"name"`
	Value string `koanf:"value"`
}

func (a *Auth) validate() error {
	switch a.Kind {
	case AuthBearer, AuthBasic, AuthHeader, AuthQuery:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAuthKind, a.Kind)
	}
}

// Sink 一个投递目标的配置，kind 判别字段归属。
type Sink struct {
	Kind SinkKind `koanf:"kind"`

	// Name 可选的注册名，默认取 kind
	Name string `koanf:"name"`

	// Offload 是否提升为 offload 模式
	Offload bool `koanf:"offload"`

	// Retry 可选的重试覆盖
	Retry *Retry `koanf:"retry"`

	// console
	UseQueue    bool `koanf:"use_queue"`
	Concurrency int  `koanf:"concurrency"`

	// file
	Path            string    `koanf:"path"`
	BatchSize       int       `koanf:"batch_size"`
	FlushIntervalMS int       `koanf:"flush_interval_ms"`
	Rotation        *Rotation `koanf:"rotation"`

	// http
	Endpoint string `koanf:"endpoint"`
	Auth     *Auth  `koanf:"auth"`
}

func (s *Sink) validate(idx int) error {
	wrap := func(err error) error {
		return fmt.Errorf("sink[%d]: %w", idx, err)
	}

	switch s.Kind {
	case SinkConsole:
		// 无必填字段
	case SinkFile:
		if s.Path == "" {
			return wrap(ErrMissingPath)
		}
		if s.Rotation != nil {
			if err := s.Rotation.validate(); err != nil {
				return wrap(err)
			}
		}
	case SinkHTTP:
		if s.Endpoint == "" {
			return wrap(ErrMissingEndpoint)
		}
		if s.Auth != nil {
			if err := s.Auth.validate(); err != nil {
				return wrap(err)
			}
		}
	default:
		return wrap(fmt.Errorf("%w: %q", ErrUnknownSinkKind, s.Kind))
	}
	return nil
}

// Pipeline 投递管道的顶层配置。
type Pipeline struct {
	Sinks []Sink `koanf:"sinks"`
}

// Validate 校验管道配置的结构完整性。
func (p *Pipeline) Validate() error {
	if len(p.Sinks) == 0 {
		return ErrNoSinks
	}
	for i := range p.Sinks {
		if err := p.Sinks[i].validate(i); err != nil {
			return err
		}
	}
	return nil
}
