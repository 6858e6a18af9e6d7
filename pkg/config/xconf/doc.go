// Package xconf 加载投递管道的声明式配置。
//
// 配置是一个 [Pipeline]：若干 sink 的有判别标签联合
//（kind 取 console/file/http，按 kind 匹配各自的字段），
// 可选的认证、轮转与重试小节。支持 YAML 与 JSON，
// 底层用 koanf 解析。
//
// [Watch] 基于 fsnotify 监控配置文件，变更防抖后重新加载
// 并把新的 Pipeline（或加载错误）交给回调。
package xconf
