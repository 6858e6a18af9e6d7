package xrotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 滚动文件默认值与上限。上限防止配置错误把磁盘写满或备份堆积失控。
const (
	DefaultMaxSizeMB  = 100 // 单文件 100 MB 触发滚动
	DefaultMaxBackups = 7
	DefaultMaxAgeDays = 30

	capMaxSizeMB  = 10240 // 10 GB
	capMaxBackups = 1024
	capMaxAgeDays = 3650
)

// rollingConfig lumberjack 滚动文件配置。
type rollingConfig struct {
	maxSizeMB  int
	maxBackups int  // 0 不限数量
	maxAgeDays int  // 0 不按天数清理
	compress   bool // 备份 gzip 压缩
	localTime  bool // 备份文件名用本地时间，默认 UTC
}

func (c *rollingConfig) validate() error {
	if c.maxSizeMB <= 0 || c.maxSizeMB > capMaxSizeMB {
		return fmt.Errorf("%w: got %d, want 1~%d", ErrInvalidMaxSize, c.maxSizeMB, capMaxSizeMB)
	}
	if c.maxBackups < 0 || c.maxBackups > capMaxBackups {
		return fmt.Errorf("%w: got %d, want 0~%d", ErrInvalidMaxBackups, c.maxBackups, capMaxBackups)
	}
	if c.maxAgeDays < 0 || c.maxAgeDays > capMaxAgeDays {
		return fmt.Errorf("%w: got %d, want 0~%d", ErrInvalidMaxAge, c.maxAgeDays, capMaxAgeDays)
	}
	return nil
}

// Option 滚动文件配置选项。
type Option func(*rollingConfig)

// WithMaxSize 设置单文件大小上限（MB），超出触发滚动。
func WithMaxSize(mb int) Option {
	return func(c *rollingConfig) { c.maxSizeMB = mb }
}

// WithMaxBackups 设置保留的备份数量，0 表示不限。
func WithMaxBackups(n int) Option {
	return func(c *rollingConfig) { c.maxBackups = n }
}

// WithMaxAge 设置备份保留天数，0 表示不按天数清理。
func WithMaxAge(days int) Option {
	return func(c *rollingConfig) { c.maxAgeDays = days }
}

// WithCompress 设置是否 gzip 压缩备份。
func WithCompress(compress bool) Option {
	return func(c *rollingConfig) { c.compress = compress }
}

// WithLocalTime 设置备份文件名是否使用本地时间。
func WithLocalTime(local bool) Option {
	return func(c *rollingConfig) { c.localTime = local }
}

// rollingFile 把 lumberjack 包装成 [Rotator]。
// lumberjack 自持文件句柄并负责滚动/清理/压缩，写入并发安全；
// 包装层只补上 lumberjack 缺失的关闭语义。
type rollingFile struct {
	lj     *lumberjack.Logger
	closed atomic.Bool
}

var _ Rotator = (*rollingFile)(nil)

// NewLumberjack 创建 lumberjack 滚动文件轮转器。
// 父目录不存在时自动创建（权限 0750）。适合不经投递引擎、
// 只要经典按大小滚动的调用方；产物可直接作为 file transport
// 的 Writer。
func NewLumberjack(filename string, opts ...Option) (Rotator, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}

	cfg := rollingConfig{
		maxSizeMB:  DefaultMaxSizeMB,
		maxBackups: DefaultMaxBackups,
		maxAgeDays: DefaultMaxAgeDays,
		compress:   true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	path := filepath.Clean(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("xrotate: ensure log directory: %w", err)
	}
	return &rollingFile{lj: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.maxSizeMB,
		MaxBackups: cfg.maxBackups,
		MaxAge:     cfg.maxAgeDays,
		Compress:   cfg.compress,
		LocalTime:  cfg.localTime,
	}}, nil
}

func (r *rollingFile) Write(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	n, err := r.lj.Write(p)
	// 前置检查通过后 Close 可能已完成；后置检查保证调用者
	// 在关闭竞态下拿到 ErrClosed 而非底层 I/O 错误
	if err != nil && r.closed.Load() {
		return n, ErrClosed
	}
	return n, err
}

// Close 关闭底层文件。重复关闭与关闭后的 Write/Rotate 均返回 [ErrClosed]。
func (r *rollingFile) Close() error {
	if r.closed.Swap(true) {
		return ErrClosed
	}
	return r.lj.Close()
}

// Rotate 手动触发一次滚动。
func (r *rollingFile) Rotate() error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.lj.Rotate(); err != nil {
		if r.closed.Load() {
			return ErrClosed
		}
		return err
	}
	return nil
}
