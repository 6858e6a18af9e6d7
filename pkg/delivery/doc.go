// Package delivery 提供日志投递相关的子包。
//
// 子包列表：
//   - xtransport: 投递核心，transport 生命周期、console/file/http sink、
//     worker 分载与管道扇出
package delivery
