package xtransport

import (
	"maps"
	"time"
)

// Level 日志级别，数值越大越严重。
type Level int

// 级别常量，间隔 10 便于调用方插入自定义级别。
const (
	LevelTrace Level = 10
	LevelDebug Level = 20
	LevelInfo  Level = 30
	LevelWarn  Level = 40
	LevelError Level = 50
	LevelFatal Level = 60
)

// String 返回级别名；未知级别返回 "unknown"。
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Fields 附加在日志条目上的结构化字段。
type Fields map[string]any

// Entry 一条结构化日志。
// 交给 Transport 后视为不可变；字段合并产生新值而非原地修改。
type Entry struct {
	// Message 日志正文
	Message string

	// Level 日志级别
	Level Level

	// Time 产生时间
	Time time.Time

	// Meta 可选的结构化字段
	Meta Fields

	// Err 可选的关联错误
	Err error
}

// mergeFields 将 transport 的静态字段并入条目，返回新条目。
// 条目自身的字段优先于静态字段。
func (e Entry) mergeFields(static Fields) Entry {
	if len(static) == 0 {
		return e
	}
	merged := make(Fields, len(static)+len(e.Meta))
	maps.Copy(merged, static)
	maps.Copy(merged, e.Meta)
	e.Meta = merged
	return e
}
