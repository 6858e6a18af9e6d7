package xtransport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry 进程级 transport 注册表。
//
// 显式创建、显式注册，替代随处可改的全局单例；覆盖必须通过
// ForceSet 表达意图，普通 Set 对重名报错。
type Registry struct {
	mu         sync.RWMutex
	transports map[string]*Transport
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]*Transport)}
}

// Set 注册一个 transport。重名返回 ErrAlreadyRegistered。
func (r *Registry) Set(name string, t *Transport) error {
	if t == nil {
		return ErrNilTransport
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.transports[name] = t
	return nil
}

// ForceSet 注册并强制覆盖重名项，返回被替换的旧 transport（可能为 nil）。
// 旧 transport 不会被关闭，关闭责任在调用方。
func (r *Registry) ForceSet(name string, t *Transport) *Transport {
	if t == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.transports[name]
	r.transports[name] = t
	return old
}

// Get 按名称查找 transport。
func (r *Registry) Get(name string) (*Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[name]
	return t, ok
}

// Delete 移除一个 transport，返回被移除项（可能为 nil）。不关闭它。
func (r *Registry) Delete(name string) *Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.transports[name]
	delete(r.transports, name)
	return t
}

// Names 返回已注册的名称列表，顺序不定。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	return names
}

// CloseAll 关闭所有注册的 transport 并清空注册表，错误聚合返回。
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	transports := r.transports
	r.transports = make(map[string]*Transport)
	r.mu.Unlock()

	var errs []error
	for name, t := range transports {
		if err := t.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
