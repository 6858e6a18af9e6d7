// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xrotate: 日志文件轮转，按大小/时间切割、压缩与留存清理
package observability
