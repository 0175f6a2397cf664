package validation

import (
	"context"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/config"
	"katydid-common-validation/pkg/logger"
	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/descriptor"
	"katydid-common-validation/pkg/validation/manager"
	"katydid-common-validation/pkg/validation/source"
)

// Engine 验证引擎门面
// 职责：组合规则注册表、描述符缓存和验证会话工厂
// 设计原则：
//   - 显式对象，测试中可各自创建互不影响的引擎
//   - Default 提供进程级单例，Reset 作为测试重置钩子
type Engine struct {
	registry *source.Registry
	factory  *source.Factory
	cache    *descriptor.Cache
	policy   *descriptor.ReflectionPolicy
	provider core.MessageProvider
	logger   *zap.Logger
}

// options 引擎构建参数
type options struct {
	sources     []descriptor.RuleSource
	reflectable []string
	provider    core.MessageProvider
	logger      *zap.Logger
	factory     *source.Factory
	bindings    map[string]reflect.Type
}

// Option 引擎配置选项
type Option func(*options)

// WithSource 追加规则来源（排在内置注册表之后）
func WithSource(sources ...descriptor.RuleSource) Option {
	return func(o *options) {
		o.sources = append(o.sources, sources...)
	}
}

// WithReflectable 标记允许跨包传播规则的包路径
func WithReflectable(pkgPaths ...string) Option {
	return func(o *options) {
		o.reflectable = append(o.reflectable, pkgPaths...)
	}
}

// WithMessageProvider 设置外部错误消息提供者
func WithMessageProvider(provider core.MessageProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFactory 设置规则文件使用的规则工厂
func WithFactory(factory *source.Factory) Option {
	return func(o *options) {
		if factory != nil {
			o.factory = factory
		}
	}
}

// WithBinding 把规则文件中的类型名绑定到 Go 类型
func WithBinding(name string, t reflect.Type) Option {
	return func(o *options) {
		o.bindings[name] = t
	}
}

// New 创建验证引擎
func New(opts ...Option) *Engine {
	return newEngine(buildOptions(opts))
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger:   zap.NewNop(),
		bindings: make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.factory == nil {
		o.factory = source.NewFactory()
	}
	return o
}

func newEngine(o *options) *Engine {
	registry := source.NewRegistry()
	policy := descriptor.NewReflectionPolicy(o.reflectable...)

	sources := append([]descriptor.RuleSource{registry}, o.sources...)
	cache := descriptor.NewCache(
		descriptor.WithSource(source.NewChain(sources...)),
		descriptor.WithPolicy(policy),
		descriptor.WithLogger(o.logger),
	)

	return &Engine{
		registry: registry,
		factory:  o.factory,
		cache:    cache,
		policy:   policy,
		provider: o.provider,
		logger:   o.logger,
	}
}

// NewFromConfig 根据配置创建引擎：日志、可反射包、规则文件
// 规则文件中引用的类型名必须先通过 WithBinding 绑定
func NewFromConfig(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, "creating logger")
	}

	o := buildOptions(append([]Option{WithLogger(log), WithReflectable(cfg.ReflectablePackages...)}, opts...))
	e := newEngine(o)

	loader := source.NewLoader(o.factory)
	for name, t := range o.bindings {
		loader.Bind(name, t)
	}
	for _, path := range cfg.RuleFiles {
		if err := loader.LoadFile(path, e.registry); err != nil {
			return nil, err
		}
		e.logger.Info("rule file loaded", zap.String("path", path))
	}
	return e, nil
}

var (
	defaultEngine *Engine
	defaultMu     sync.Mutex
)

// Default 获取默认引擎（单例）
func Default() *Engine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		defaultEngine = New()
	}
	return defaultEngine
}

// Reset 丢弃默认引擎，下次调用 Default 时重新创建
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = nil
}

// Registry 内置规则注册表
func (e *Engine) Registry() *source.Registry {
	return e.registry
}

// Factory 规则工厂
func (e *Engine) Factory() *source.Factory {
	return e.factory
}

// Cache 描述符缓存
func (e *Engine) Cache() *descriptor.Cache {
	return e.cache
}

// Policy 跨包反射策略
func (e *Engine) Policy() *descriptor.ReflectionPolicy {
	return e.policy
}

// Logger 日志
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// LoadRules 从 YAML 数据加载规则到内置注册表
func (e *Engine) LoadRules(data []byte, bindings map[string]reflect.Type) error {
	loader := source.NewLoader(e.factory)
	for name, t := range bindings {
		loader.Bind(name, t)
	}
	return loader.LoadYAML(data, e.registry)
}

// For 为实例创建验证会话
func (e *Engine) For(target any, ruleSet string, opts ...manager.Option) (*manager.Manager, error) {
	return manager.NewForInstance(e.cache, target, ruleSet, e.sessionOptions(opts)...)
}

// ForType 为静态类型创建验证会话
func (e *Engine) ForType(t reflect.Type, ruleSet string, opts ...manager.Option) (*manager.Manager, error) {
	return manager.NewForType(e.cache, t, ruleSet, e.sessionOptions(opts)...)
}

// Validate 验证实例的全部成员
// 返回 nil 表示通过；验证失败返回 core.ValidationErrors；定义期错误原样返回
func (e *Engine) Validate(ctx context.Context, target any, ruleSet string) error {
	m, err := e.For(target, ruleSet, manager.WithContext(ctx))
	if err != nil {
		return err
	}
	m.ValidateAll()
	return m.Err()
}

// ValidateCall 验证方法实参，receiver 为方法接收者
func (e *Engine) ValidateCall(ctx context.Context, receiver any, method, ruleSet string, args ...any) error {
	if receiver == nil {
		return errors.Wrapf(core.ErrMethodNotFound, "nil receiver for %q", method)
	}
	desc, err := e.cache.Method(reflect.TypeOf(receiver), method)
	if err != nil {
		return err
	}
	return manager.NewCallValidator(desc, ruleSet, e.sessionOptions([]manager.Option{manager.WithContext(ctx)})...).
		Validate(receiver, args...)
}

// ValidateFunc 验证普通函数实参
func (e *Engine) ValidateFunc(ctx context.Context, fn any, ruleSet string, args ...any) error {
	desc, err := e.cache.Func(fn)
	if err != nil {
		return err
	}
	return manager.NewCallValidator(desc, ruleSet, e.sessionOptions([]manager.Option{manager.WithContext(ctx)})...).
		Validate(nil, args...)
}

// Describe 获取值的类型描述符
func (e *Engine) Describe(v any) (*descriptor.TypeDescriptor, error) {
	return e.cache.TypeOf(v)
}

// DescribeType 获取类型描述符
func (e *Engine) DescribeType(t reflect.Type) (*descriptor.TypeDescriptor, error) {
	return e.cache.Type(t)
}

// DescribeMethod 获取方法描述符
func (e *Engine) DescribeMethod(receiver reflect.Type, name string) (*descriptor.MethodDescriptor, error) {
	return e.cache.Method(receiver, name)
}

// DescribeFunc 获取普通函数描述符
func (e *Engine) DescribeFunc(fn any) (*descriptor.MethodDescriptor, error) {
	return e.cache.Func(fn)
}

// Clear 清空描述符缓存
func (e *Engine) Clear() {
	e.cache.Clear()
}

// Remove 移除类型及其方法的描述符
func (e *Engine) Remove(t reflect.Type) {
	e.cache.Remove(t)
}

// sessionOptions 引擎级选项排在调用方选项之前
func (e *Engine) sessionOptions(opts []manager.Option) []manager.Option {
	base := []manager.Option{manager.WithLogger(e.logger)}
	if e.provider != nil {
		base = append(base, manager.WithMessageProvider(e.provider))
	}
	return append(base, opts...)
}

// Validate 使用默认引擎验证实例
func Validate(ctx context.Context, target any, ruleSet string) error {
	return Default().Validate(ctx, target, ruleSet)
}

// For 使用默认引擎创建验证会话
func For(target any, ruleSet string, opts ...manager.Option) (*manager.Manager, error) {
	return Default().For(target, ruleSet, opts...)
}
