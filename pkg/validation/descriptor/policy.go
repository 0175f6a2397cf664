package descriptor

import (
	"reflect"
	"sort"
	"sync"
)

// ReflectionPolicy 跨包反射边界策略
// 同一包内的基类型总是允许向下传播规则；其他包只有被显式标记为可反射时才允许
type ReflectionPolicy struct {
	mu       sync.RWMutex
	packages map[string]bool
}

// NewReflectionPolicy 创建策略，pkgPaths 为可反射的包路径
func NewReflectionPolicy(pkgPaths ...string) *ReflectionPolicy {
	p := &ReflectionPolicy{packages: make(map[string]bool, len(pkgPaths))}
	for _, path := range pkgPaths {
		p.packages[path] = true
	}
	return p
}

// MarkReflectable 标记包为可反射
func (p *ReflectionPolicy) MarkReflectable(pkgPaths ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, path := range pkgPaths {
		p.packages[path] = true
	}
}

// IsReflectable 包是否被标记为可反射
func (p *ReflectionPolicy) IsReflectable(pkgPath string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.packages[pkgPath]
}

// Permits 是否允许从 derived 走到 base
func (p *ReflectionPolicy) Permits(derived, base reflect.Type) bool {
	derived, base = indirect(derived), indirect(base)
	if derived.PkgPath() == base.PkgPath() {
		return true
	}
	return p.IsReflectable(base.PkgPath())
}

// Packages 已标记的包路径（排序后）
func (p *ReflectionPolicy) Packages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.packages))
	for path := range p.packages {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// indirect 解开指针类型
func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
