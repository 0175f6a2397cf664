package accessor

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Func 成员访问器，读取目标对象上成员的当前值
// 返回 false 表示目标类型不匹配或访问路径上存在 nil 指针
type Func func(target any) (any, bool)

// memberKind 访问器种类
type memberKind uint8

const (
	kindField memberKind = iota
	kindMethod
	kindPath
)

// cacheKey 访问器缓存键
type cacheKey struct {
	typ  reflect.Type
	name string
	kind memberKind
}

// Provider 访问器提供者
// 职责：为成员生成可复用的访问闭包，避免每次验证都重新解析反射路径
// 设计原则：缓存代理模式，同一 (类型, 成员) 只生成一次
type Provider struct {
	cache sync.Map // key: cacheKey, value: Func
}

var (
	defaultProvider *Provider
	once            sync.Once
)

// Default 获取全局访问器提供者（单例）
func Default() *Provider {
	once.Do(func() {
		defaultProvider = NewProvider()
	})
	return defaultProvider
}

// NewProvider 创建访问器提供者
func NewProvider() *Provider {
	return &Provider{}
}

// Field 获取结构体字段访问器
// field 必须来自 t.Field / t.FieldByName（Index 为相对 t 的索引路径）
func (p *Provider) Field(t reflect.Type, field reflect.StructField) Func {
	key := cacheKey{typ: t, name: field.Name, kind: kindField}
	if cached, ok := p.cache.Load(key); ok {
		return cached.(Func)
	}

	fn := fieldAccessor(t, field.Index)
	actual, _ := p.cache.LoadOrStore(key, fn)
	return actual.(Func)
}

// FieldPath 按相对 t 的完整索引路径获取字段访问器
// 用于在 t 上有歧义（多条嵌入路径）的提升字段，路径上的嵌入类型可以不导出
func (p *Provider) FieldPath(t reflect.Type, index []int) Func {
	key := cacheKey{typ: t, name: fmt.Sprint(index), kind: kindPath}
	if cached, ok := p.cache.Load(key); ok {
		return cached.(Func)
	}

	fn := fieldAccessor(t, append([]int(nil), index...))
	actual, _ := p.cache.LoadOrStore(key, fn)
	return actual.(Func)
}

// Method 获取 getter 方法访问器
// 方法在 T 或 *T 的方法集中查找，不存在或不是 getter 形态时返回 false
func (p *Provider) Method(t reflect.Type, name string) (Func, bool) {
	key := cacheKey{typ: t, name: name, kind: kindMethod}
	if cached, ok := p.cache.Load(key); ok {
		return cached.(Func), true
	}

	method, ok := reflect.PointerTo(t).MethodByName(name)
	if !ok || !IsGetter(method) {
		return nil, false
	}

	fn := methodAccessor(t, method)
	actual, _ := p.cache.LoadOrStore(key, fn)
	return actual.(Func), true
}

// Static 包装静态成员的取值函数
func (p *Provider) Static(get func() any) Func {
	return func(any) (any, bool) {
		if get == nil {
			return nil, false
		}
		return get(), true
	}
}

// Len 已缓存的访问器数量
func (p *Provider) Len() int {
	count := 0
	p.cache.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Clear 清空访问器缓存
func (p *Provider) Clear() {
	p.cache.Range(func(key, _ any) bool {
		p.cache.Delete(key)
		return true
	})
}

// Remove 移除某个类型的全部访问器
func (p *Provider) Remove(t reflect.Type) {
	p.cache.Range(func(key, _ any) bool {
		if key.(cacheKey).typ == t {
			p.cache.Delete(key)
		}
		return true
	})
}

// fieldAccessor 构建字段访问器（闭包捕获索引路径）
func fieldAccessor(t reflect.Type, index []int) Func {
	return func(target any) (any, bool) {
		v, ok := structValue(target, t)
		if !ok {
			return nil, false
		}

		// 嵌入指针为 nil 时返回错误而不是 panic
		fv, err := v.FieldByIndexErr(index)
		if err != nil || !fv.IsValid() || !fv.CanInterface() {
			return nil, false
		}
		return fv.Interface(), true
	}
}

// methodAccessor 构建 getter 方法访问器
// method 来自 *T 的方法集，值接收者和指针接收者方法都可以调用
// getter 自身的 panic 原样向上传播；只有提升路径上的嵌入指针为 nil 时才返回 false
func methodAccessor(t reflect.Type, method reflect.Method) Func {
	fn := method.Func
	path := promotionPath(t, method.Name)
	return func(target any) (any, bool) {
		recv, valid := pointerValue(target, t)
		if !valid {
			return nil, false
		}
		if path != nil && nilOnPath(recv.Elem(), path) {
			// 同名方法可能由 t 自身声明（遮蔽嵌入类型），仍然调用一次
			return callGuarded(fn, recv)
		}

		out := fn.Call([]reflect.Value{recv})
		return out[0].Interface(), true
	}
}

// callGuarded 调用经过 nil 嵌入指针的提升方法，panic 视为不可读
func callGuarded(fn, recv reflect.Value) (value any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			value, ok = nil, false
		}
	}()
	out := fn.Call([]reflect.Value{recv})
	return out[0].Interface(), true
}

// promotionPath 方法可能被提升自的最浅嵌入字段索引路径，找不到时返回 nil
func promotionPath(t reflect.Type, name string) []int {
	if t.Kind() != reflect.Struct {
		return nil
	}

	type node struct {
		typ   reflect.Type
		index []int
	}

	seen := map[reflect.Type]bool{t: true}
	queue := []node{{typ: t}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for i := 0; i < n.typ.NumField(); i++ {
			field := n.typ.Field(i)
			if !field.Anonymous {
				continue
			}
			index := append(append([]int(nil), n.index...), i)

			ft := field.Type
			if ft.Kind() == reflect.Interface {
				if _, ok := ft.MethodByName(name); ok {
					return index
				}
				continue
			}
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() != reflect.Struct || seen[ft] {
				continue
			}
			seen[ft] = true

			if _, ok := reflect.PointerTo(ft).MethodByName(name); ok {
				return index
			}
			queue = append(queue, node{typ: ft, index: index})
		}
	}
	return nil
}

// nilOnPath 沿嵌入路径检查是否存在 nil 指针或 nil 接口
func nilOnPath(v reflect.Value, index []int) bool {
	for _, i := range index {
		if v.Kind() != reflect.Struct {
			return false
		}
		v = v.Field(i)
		if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return true
			}
			v = v.Elem()
		}
	}
	return false
}

// structValue 把目标解引用为类型 t 的结构体值
func structValue(target any, t reflect.Type) (reflect.Value, bool) {
	v := reflect.ValueOf(target)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != t {
		return reflect.Value{}, false
	}
	return v, true
}

// pointerValue 获取类型 *t 的接收者
// 值类型目标不可寻址时复制一份，保证值语义
func pointerValue(target any, t reflect.Type) (reflect.Value, bool) {
	v := reflect.ValueOf(target)
	if !v.IsValid() {
		return reflect.Value{}, false
	}

	if v.Kind() == reflect.Pointer {
		if v.IsNil() || v.Type().Elem() != t {
			return reflect.Value{}, false
		}
		return v, true
	}

	if v.Type() != t {
		return reflect.Value{}, false
	}
	if v.CanAddr() {
		return v.Addr(), true
	}
	ptr := reflect.New(t)
	ptr.Elem().Set(v)
	return ptr, true
}

// IsGetter 判断方法是否为 getter 形态：导出、无参数、单返回值
// method 必须来自 reflect.Type 的方法集（Type 含接收者）
func IsGetter(method reflect.Method) bool {
	if !method.IsExported() {
		return false
	}
	mt := method.Type
	return mt.NumIn() == 1 && mt.NumOut() == 1
}

// LookupField 查找字段，先按字段名，再按 json tag 名
func LookupField(t reflect.Type, name string) (reflect.StructField, bool) {
	if field, ok := t.FieldByName(name); ok {
		return field, true
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if tag != "" && tag != "-" && tag == name {
			return field, true
		}
	}
	return reflect.StructField{}, false
}
