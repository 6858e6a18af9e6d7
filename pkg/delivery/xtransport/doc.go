// Package xtransport 提供结构化日志的投递引擎。
//
// 核心抽象是 [Transport]：一个 Open → Closing → Closed 单向生命周期的
// 投递单元，内部维护 requested/processed 两个计数器，任何被接受的请求
// 恰好在成功、失败或拒绝路径之一中计入 processed 一次，Close 时
// processed == requested 是自检不变量。
//
// 三种内置 sink：
//
//   - [NewConsole]: 单条渲染后写入 io.Writer（默认 stdout）
//   - [NewFile]: 缓冲 + 批量落盘，可挂接 xrotate 轮转状态机或任意
//     io.WriteCloser（如 lumberjack）
//   - [NewHTTP]: 缓冲 + 按批次切片并发 POST，支持注入认证策略
//
// Transport 可通过 [Transport.RunAsWorker] 一次性提升为 offload 模式：
// 在独立 goroutine 中用构造参数重建一个副本，所有日志经 channel 转发，
// ready/drain/close 生命周期通过令牌握手协调。带错误前缀的消息是
// 带外错误通知，转发到错误回调但不满足任何握手。
//
// 投递失败绝不 panic、绝不从 Log 返回：一切失败统一归一化为
// [*DeliveryError] 并经错误回调（默认 slog 写 stderr）上报。
package xtransport
