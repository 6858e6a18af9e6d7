// Package xrotate 提供日志文件轮转能力。
//
// 两种互补的实现：
//
//   - [FileRotator]: 投递引擎使用的轮转状态机。文件流由调用方持有，
//     轮转时通过 closeSink/openSink 回调协调关闭与重建。支持按大小、
//     按 UTC 时间桶（天/小时）触发，可选 gzip 压缩与按数量保留清理。
//     同一实例上并发的 Rotate 只执行一次物理轮转，后到者等待在途
//     轮转完成并得到 false。
//   - [NewLumberjack]: 基于 lumberjack v2 的 [Rotator]（io.WriteCloser），
//     文件句柄由轮转器自己持有，适合不需要投递引擎协调的简单滚动场景。
//
// 轮转文件命名为 <base>.<UTC 时间戳>(<ext>)[.gz]，时间戳中的 ':' 与 '.'
// 替换为 '-'，因此字典序即时间序，保留清理直接按名字排序。
package xrotate
