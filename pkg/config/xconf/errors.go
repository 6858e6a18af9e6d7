package xconf

import "errors"

// 配置加载和校验相关错误。
var (
	// ErrEmptyPath 配置文件路径为空
	ErrEmptyPath = errors.New("xconf: empty config path")

	// ErrUnsupportedFormat 不支持的配置格式
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")

	// ErrLoadFailed 配置加载失败
	ErrLoadFailed = errors.New("xconf: failed to load config")

	// ErrParseFailed 配置解析失败
	ErrParseFailed = errors.New("xconf: failed to parse config")

	// ErrUnmarshalFailed 配置反序列化失败
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")

	// ErrNoSinks 管道未配置任何 sink
	ErrNoSinks = errors.New("xconf: pipeline has no sinks")

	// ErrUnknownSinkKind sink kind 不在 console/file/http 之内
	ErrUnknownSinkKind = errors.New("xconf: unknown sink kind")

	// ErrUnknownAuthKind auth kind 不在支持的认证方式之内
	ErrUnknownAuthKind = errors.New("xconf: unknown auth kind")

	// ErrUnknownInterval 轮转 interval 不在 none/hourly/daily 之内
	ErrUnknownInterval = errors.New("xconf: unknown rotation interval")

	// ErrMissingPath 文件 sink 缺少 path
	ErrMissingPath = errors.New("xconf: file sink requires path")

	// ErrMissingEndpoint HTTP sink 缺少 endpoint
	ErrMissingEndpoint = errors.New("xconf: http sink requires endpoint")
)
