package xrotate

import "errors"

var (
	// ErrEmptyFilename 文件名为空
	ErrEmptyFilename = errors.New("xrotate: filename is required")

	// ErrNilSinkFunc closeSink/openSink 回调为 nil
	ErrNilSinkFunc = errors.New("xrotate: closeSink and openSink are required")

	// ErrInvalidMaxBytes MaxBytes 为负数
	ErrInvalidMaxBytes = errors.New("xrotate: invalid MaxBytes")

	// ErrInvalidMaxFiles MaxFiles 为负数
	ErrInvalidMaxFiles = errors.New("xrotate: invalid MaxFiles")

	// ErrInvalidInterval Interval 值未定义
	ErrInvalidInterval = errors.New("xrotate: invalid Interval")

	// ErrInvalidMaxSize lumberjack MaxSizeMB 值无效（必须在 1~10240 范围内）
	ErrInvalidMaxSize = errors.New("xrotate: invalid MaxSizeMB")

	// ErrInvalidMaxBackups lumberjack MaxBackups 值无效（必须在 0~1024 范围内）
	ErrInvalidMaxBackups = errors.New("xrotate: invalid MaxBackups")

	// ErrInvalidMaxAge lumberjack MaxAgeDays 值无效（必须在 0~3650 范围内）
	ErrInvalidMaxAge = errors.New("xrotate: invalid MaxAgeDays")

	// ErrClosed 轮转器已关闭
	ErrClosed = errors.New("xrotate: rotator is closed")
)
