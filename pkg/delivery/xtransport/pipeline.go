package xtransport

import (
	"context"
	"errors"
	"reflect"
)

// Pipeline 把日志扇出到多个 transport。
//
// 批量发运时做一次序列化优化：共享同一 Renderer 的 offload
// transport 只序列化一次，载荷经 RawForward 直达各副本，
// 避免同一批次被重复编码（RawForward 存在的意义）。
// 跨 sink 的完成顺序不做任何保证。
type Pipeline struct {
	transports []*Transport
}

// NewPipeline 创建扇出管道。nil transport 被忽略。
func NewPipeline(transports ...*Transport) *Pipeline {
	p := &Pipeline{}
	for _, t := range transports {
		if t != nil {
			p.transports = append(p.transports, t)
		}
	}
	return p
}

// Transports 返回管道内的 transport 列表。
func (p *Pipeline) Transports() []*Transport {
	return p.transports
}

// Log 把一条日志投递给所有 transport，发后即忘。
func (p *Pipeline) Log(e Entry) {
	for _, t := range p.transports {
		t.Log(e)
	}
}

// ShipBatch 把一批日志投递给所有 transport。
//
// offload transport 按 Renderer 分组，每组序列化一次后 RawForward；
// 本地 transport 逐条走 Log。RawForward 失败的组回退为逐条投递。
func (p *Pipeline) ShipBatch(batch []Entry) {
	if len(batch) == 0 {
		return
	}

	// 按渲染器分组。渲染器是接口值，动态类型不可比较时不能参与
	// 相等判断（会 panic），这类渲染器各自成组，仍正确投递，
	// 只是失去序列化共享
	type group struct {
		r  Renderer
		ts []*Transport
	}
	var groups []group
	for _, t := range p.transports {
		if !t.Offloaded() {
			for _, e := range batch {
				t.Log(e)
			}
			continue
		}
		r := t.Renderer()
		placed := false
		if r != nil && reflect.TypeOf(r).Comparable() {
			for i := range groups {
				if groups[i].r == r {
					groups[i].ts = append(groups[i].ts, t)
					placed = true
					break
				}
			}
		}
		if !placed {
			groups = append(groups, group{r: r, ts: []*Transport{t}})
		}
	}

	for _, g := range groups {
		payload, err := g.r.Format(batch)
		if err != nil {
			// 序列化失败回退逐条，让各 transport 自行上报
			for _, t := range g.ts {
				for _, e := range batch {
					t.Log(e)
				}
			}
			continue
		}
		for _, t := range g.ts {
			if ferr := t.RawForward(payload); ferr != nil {
				for _, e := range batch {
					t.Log(e)
				}
			}
		}
	}
}

// FlushAndWait 等待所有 transport 结清调用时刻之前的请求。
// 返回值报告是否全部达成；错误聚合后一并返回。
func (p *Pipeline) FlushAndWait(ctx context.Context) (bool, error) {
	all := true
	var errs []error
	for _, t := range p.transports {
		reached, err := t.FlushAndWait(ctx)
		if !reached {
			all = false
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return all, errors.Join(errs...)
}

// Close 关闭所有 transport，错误聚合后一并返回。
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	for _, t := range p.transports {
		if err := t.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
