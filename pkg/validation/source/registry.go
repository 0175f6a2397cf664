package source

import (
	"reflect"
	"sync"

	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/descriptor"
)

// Registry 内存规则来源
// 职责：以代码方式为类型、接口、方法和函数登记规则
// 登记应在第一次构建描述符之前完成，描述符构建后不会再读取新登记的规则
type Registry struct {
	mu         sync.RWMutex
	types      map[reflect.Type]*descriptor.TypeRules
	methods    map[descriptor.MethodKey]*descriptor.MethodRules
	interfaces []reflect.Type
}

// NewRegistry 创建规则注册表
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[reflect.Type]*descriptor.TypeRules),
		methods: make(map[descriptor.MethodKey]*descriptor.MethodRules),
	}
}

// For 获取类型 T 的规则构建器，T 为接口时登记为接口规则
func For[T any](r *Registry) *TypeBuilder {
	return r.Type(reflect.TypeOf((*T)(nil)).Elem())
}

// MethodOf 获取类型 T 上方法的参数规则构建器
func MethodOf[T any](r *Registry, name string) *MethodBuilder {
	return r.Method(reflect.TypeOf((*T)(nil)).Elem(), name)
}

// Type 获取类型的规则构建器（指针类型按元素类型登记）
func (r *Registry) Type(t reflect.Type) *TypeBuilder {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t]; !ok {
		r.types[t] = &descriptor.TypeRules{}
		if t.Kind() == reflect.Interface {
			r.interfaces = append(r.interfaces, t)
		}
	}
	return &TypeBuilder{registry: r, typ: t}
}

// Method 获取方法的参数规则构建器
func (r *Registry) Method(receiver reflect.Type, name string) *MethodBuilder {
	for receiver.Kind() == reflect.Pointer {
		receiver = receiver.Elem()
	}
	return r.method(descriptor.MethodKey{Receiver: receiver, Name: name})
}

// Func 获取普通函数的参数规则构建器
func (r *Registry) Func(fn any) *MethodBuilder {
	return r.method(descriptor.MethodKey{Name: descriptor.FuncName(fn)})
}

func (r *Registry) method(key descriptor.MethodKey) *MethodBuilder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[key]; !ok {
		r.methods[key] = &descriptor.MethodRules{}
	}
	return &MethodBuilder{registry: r, key: key}
}

// TypeRules 实现 descriptor.RuleSource 接口
func (r *Registry) TypeRules(t reflect.Type) (*descriptor.TypeRules, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.types[t]
	if !ok {
		return nil, nil
	}
	return cloneTypeRules(rules), nil
}

// MethodRules 实现 descriptor.RuleSource 接口
func (r *Registry) MethodRules(key descriptor.MethodKey) (*descriptor.MethodRules, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.methods[key]
	if !ok {
		return nil, nil
	}
	return &descriptor.MethodRules{Params: append([]descriptor.ParamRules(nil), rules.Params...)}, nil
}

// Interfaces 实现 descriptor.RuleSource 接口
func (r *Registry) Interfaces() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]reflect.Type(nil), r.interfaces...)
}

// Len 已登记的类型数和方法数
func (r *Registry) Len() (types, methods int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types), len(r.methods)
}

func cloneTypeRules(rules *descriptor.TypeRules) *descriptor.TypeRules {
	out := &descriptor.TypeRules{
		Members: make([]descriptor.MemberRules, len(rules.Members)),
		Statics: make([]descriptor.StaticMember, len(rules.Statics)),
	}
	for i, m := range rules.Members {
		m.Rules = append([]core.Rule(nil), m.Rules...)
		out.Members[i] = m
	}
	for i, s := range rules.Statics {
		s.Rules = append([]core.Rule(nil), s.Rules...)
		out.Statics[i] = s
	}
	return out
}

// ============================================================================
// 构建器
// ============================================================================

// TypeBuilder 类型规则构建器（链式调用）
type TypeBuilder struct {
	registry *Registry
	typ      reflect.Type
}

// Member 为成员追加规则，同名成员的规则按调用顺序累积
func (b *TypeBuilder) Member(name string, rules ...core.Rule) *TypeBuilder {
	b.update(name, func(m *descriptor.MemberRules) {
		m.Rules = append(m.Rules, rules...)
	})
	return b
}

// Alias 登记别名成员：以 name 命名，实际读取 accessor 指向的字段或方法
// 接口的显式实现使用 "Iface.Method" 作为 name
func (b *TypeBuilder) Alias(name, accessor string, rules ...core.Rule) *TypeBuilder {
	b.update(name, func(m *descriptor.MemberRules) {
		m.Accessor = accessor
		m.Rules = append(m.Rules, rules...)
	})
	return b
}

// AlwaysInclude 标记成员在没有规则时也保留在描述符中
func (b *TypeBuilder) AlwaysInclude(names ...string) *TypeBuilder {
	for _, name := range names {
		b.update(name, func(m *descriptor.MemberRules) {
			m.AlwaysInclude = true
		})
	}
	return b
}

// Static 登记静态成员
func (b *TypeBuilder) Static(name string, typ reflect.Type, get func() any, rules ...core.Rule) *TypeBuilder {
	b.registry.mu.Lock()
	defer b.registry.mu.Unlock()

	tr := b.registry.types[b.typ]
	for i := range tr.Statics {
		if tr.Statics[i].Name == name {
			tr.Statics[i].Rules = append(tr.Statics[i].Rules, rules...)
			return b
		}
	}
	tr.Statics = append(tr.Statics, descriptor.StaticMember{
		Name:  name,
		Type:  typ,
		Get:   get,
		Rules: rules,
	})
	return b
}

// Type 构建器对应的类型
func (b *TypeBuilder) Type() reflect.Type {
	return b.typ
}

func (b *TypeBuilder) update(name string, apply func(*descriptor.MemberRules)) {
	b.registry.mu.Lock()
	defer b.registry.mu.Unlock()

	tr := b.registry.types[b.typ]
	for i := range tr.Members {
		if tr.Members[i].Name == name {
			apply(&tr.Members[i])
			return
		}
	}
	tr.Members = append(tr.Members, descriptor.MemberRules{Name: name})
	apply(&tr.Members[len(tr.Members)-1])
}

// MethodBuilder 方法参数规则构建器
type MethodBuilder struct {
	registry *Registry
	key      descriptor.MethodKey
}

// Param 为参数追加规则，name 为空时使用 argN
func (b *MethodBuilder) Param(position int, name string, rules ...core.Rule) *MethodBuilder {
	b.update(position, func(p *descriptor.ParamRules) {
		if name != "" {
			p.Name = name
		}
		p.Rules = append(p.Rules, rules...)
	})
	return b
}

// Out 标记输出参数
func (b *MethodBuilder) Out(position int) *MethodBuilder {
	b.update(position, func(p *descriptor.ParamRules) {
		p.Out = true
	})
	return b
}

// Key 构建器对应的方法标识
func (b *MethodBuilder) Key() descriptor.MethodKey {
	return b.key
}

func (b *MethodBuilder) update(position int, apply func(*descriptor.ParamRules)) {
	b.registry.mu.Lock()
	defer b.registry.mu.Unlock()

	mr := b.registry.methods[b.key]
	for i := range mr.Params {
		if mr.Params[i].Position == position {
			apply(&mr.Params[i])
			return
		}
	}
	mr.Params = append(mr.Params, descriptor.ParamRules{Position: position})
	apply(&mr.Params[len(mr.Params)-1])
}
