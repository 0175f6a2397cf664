package descriptor

import (
	"reflect"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/core"
)

// typeEntry 类型缓存项，once 保证同一类型只构建一次
type typeEntry struct {
	once sync.Once
	desc *TypeDescriptor
	err  error
}

// methodEntry 方法缓存项
type methodEntry struct {
	once sync.Once
	desc *MethodDescriptor
	err  error
}

// Cache 类型/方法描述符缓存
// 设计原则：
//   - 显式的注册表对象，Clear / Remove 管理生命周期
//   - sync.Map.LoadOrStore 原子地插入缓存项，sync.Once 保证并发首次访问只构建一次
//   - 发布后的读取不加锁
type Cache struct {
	source  RuleSource
	policy  *ReflectionPolicy
	access  *accessor.Provider
	logger  *zap.Logger
	types   sync.Map // key: reflect.Type, value: *typeEntry
	methods sync.Map // key: MethodKey, value: *methodEntry
}

// Option 缓存配置选项
type Option func(*Cache)

// WithSource 设置规则来源
func WithSource(source RuleSource) Option {
	return func(c *Cache) {
		if source != nil {
			c.source = source
		}
	}
}

// WithPolicy 设置跨包反射策略
func WithPolicy(policy *ReflectionPolicy) Option {
	return func(c *Cache) {
		if policy != nil {
			c.policy = policy
		}
	}
}

// WithAccessorProvider 设置访问器提供者
func WithAccessorProvider(provider *accessor.Provider) Option {
	return func(c *Cache) {
		if provider != nil {
			c.access = provider
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache 创建描述符缓存
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		source: emptySource{},
		policy: NewReflectionPolicy(),
		access: accessor.Default(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy 跨包反射策略
func (c *Cache) Policy() *ReflectionPolicy {
	return c.policy
}

// Source 规则来源
func (c *Cache) Source() RuleSource {
	return c.source
}

// Type 获取或构建类型描述符（幂等、线程安全，已存在的缓存项不会重建）
// 指针类型按元素类型处理；接口类型返回 ErrInterfaceType
func (c *Cache) Type(t reflect.Type) (*TypeDescriptor, error) {
	if t == nil {
		return nil, errors.Wrap(core.ErrNotStruct, "nil type")
	}
	t = indirect(t)

	v, ok := c.types.Load(t)
	if !ok {
		v, _ = c.types.LoadOrStore(t, &typeEntry{})
	}
	entry := v.(*typeEntry)
	entry.once.Do(func() {
		entry.desc, entry.err = c.buildType(t)
		if entry.err != nil {
			c.logger.Warn("type descriptor configuration error",
				zap.Stringer("type", t), zap.Error(entry.err))
		}
	})
	return entry.desc, entry.err
}

// TypeOf 获取值的类型描述符
func (c *Cache) TypeOf(v any) (*TypeDescriptor, error) {
	return c.Type(reflect.TypeOf(v))
}

// Method 获取或构建方法描述符
func (c *Cache) Method(receiver reflect.Type, name string) (*MethodDescriptor, error) {
	if receiver == nil {
		return nil, errors.Wrapf(core.ErrMethodNotFound, "nil receiver for %q", name)
	}
	key := MethodKey{Receiver: indirect(receiver), Name: name}
	return c.method(key, func() (*MethodDescriptor, error) {
		return c.buildMethod(key)
	})
}

// Func 获取或构建普通函数的描述符（静态方法）
func (c *Cache) Func(fn any) (*MethodDescriptor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, errors.Wrapf(core.ErrMethodNotFound, "%T is not a function", fn)
	}
	key := MethodKey{Name: FuncName(fn)}
	return c.method(key, func() (*MethodDescriptor, error) {
		return c.buildFunc(key, v.Type())
	})
}

func (c *Cache) method(key MethodKey, build func() (*MethodDescriptor, error)) (*MethodDescriptor, error) {
	v, ok := c.methods.Load(key)
	if !ok {
		v, _ = c.methods.LoadOrStore(key, &methodEntry{})
	}
	entry := v.(*methodEntry)
	entry.once.Do(func() {
		entry.desc, entry.err = build()
		if entry.err != nil {
			c.logger.Warn("method descriptor configuration error",
				zap.Stringer("method", key), zap.Error(entry.err))
		}
	})
	return entry.desc, entry.err
}

// Clear 清空类型和方法缓存
func (c *Cache) Clear() {
	c.types.Range(func(key, _ any) bool {
		c.types.Delete(key)
		return true
	})
	c.methods.Range(func(key, _ any) bool {
		c.methods.Delete(key)
		return true
	})
	c.access.Clear()
	c.logger.Debug("descriptor cache cleared")
}

// Remove 移除类型描述符及该类型上的方法描述符
func (c *Cache) Remove(t reflect.Type) {
	if t == nil {
		return
	}
	t = indirect(t)
	c.types.Delete(t)
	c.methods.Range(func(key, _ any) bool {
		if key.(MethodKey).Receiver == t {
			c.methods.Delete(key)
		}
		return true
	})
	c.access.Remove(t)
	c.logger.Debug("type descriptor evicted", zap.Stringer("type", t))
}

// RemoveMethod 移除单个方法描述符
func (c *Cache) RemoveMethod(key MethodKey) {
	if key.Receiver != nil {
		key.Receiver = indirect(key.Receiver)
	}
	c.methods.Delete(key)
}

// Len 已缓存的类型数和方法数
func (c *Cache) Len() (types, methods int) {
	c.types.Range(func(_, _ any) bool {
		types++
		return true
	})
	c.methods.Range(func(_, _ any) bool {
		methods++
		return true
	})
	return types, methods
}

// FuncName 运行时函数全名，作为普通函数的方法标识
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
