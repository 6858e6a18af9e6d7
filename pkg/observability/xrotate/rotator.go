package xrotate

import "io"

// 编译时断言：Rotator 接口是 io.WriteCloser 的超集
var _ io.WriteCloser = (Rotator)(nil)

// Rotator 自持句柄的日志轮转器接口。
//
// 实现必须并发安全；Close 后调用 Write 或 Rotate 应返回 [ErrClosed]。
// 投递引擎的文件 sink 接受任意 io.WriteCloser，Rotator 实现
// （如 [NewLumberjack]）可直接作为其输出目标。
type Rotator interface {
	// Write 写入日志数据，触发轮转条件时自动轮转
	Write(p []byte) (n int, err error)

	// Close 关闭轮转器，释放资源；重复调用返回 [ErrClosed]
	Close() error

	// Rotate 手动触发一次轮转
	Rotate() error
}
