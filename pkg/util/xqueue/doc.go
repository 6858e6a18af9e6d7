// Package xqueue 提供有界并发的异步作业队列。
//
// [Queue] 按入队顺序启动作业，同时运行的作业数不超过创建时指定的并发上限
// （由 golang.org/x/sync/semaphore 保证）。作业自身的错误会被队列吞掉，
// 只通过可选的回调或 slog 诊断输出，调用方应在作业内部处理失败。
//
// [Queue.Drain] 在队列排空（无待运行也无在途作业）时完成；
// 可以并发调用多次，所有等待者一起被唤醒。正在运行的作业入队的新作业
// 也会被排空等待覆盖。
//
// Queue 没有独立的生命周期：不持有常驻 goroutine，
// 每个作业对应一个短生命周期 goroutine，排空后自然归零。
package xqueue
