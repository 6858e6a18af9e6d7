// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xqueue: 有界并发任务队列，信号量控制在途上限、支持排空等待
package util
