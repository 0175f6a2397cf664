package core

import (
	"context"
	"reflect"
	"strings"
)

// ============================================================================
// 规则契约
// ============================================================================

// Severity 规则严重级别
type Severity int

const (
	SeverityError   Severity = iota // 错误（默认）
	SeverityWarning                 // 警告
	SeverityInfo                    // 提示
)

// String 返回严重级别名称
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "error"
	}
}

// MemberKind 成员种类，决定默认错误消息中的描述词
type MemberKind int

const (
	KindField     MemberKind = iota // 结构体字段
	KindProperty                    // 属性（getter 方法或静态成员）
	KindParameter                   // 方法参数
)

// Label 返回默认消息使用的种类标签
func (k MemberKind) Label() string {
	switch k {
	case KindProperty:
		return "property"
	case KindParameter:
		return "parameter"
	default:
		return "member"
	}
}

// Member 规则可见的成员视图
// 由 descriptor 包中的成员描述符实现，规则只通过该接口读取成员元数据
type Member interface {
	// Name 成员名称
	Name() string
	// Type 成员声明的值类型
	Type() reflect.Type
	// Kind 成员种类
	Kind() MemberKind
}

// Options 规则的不可变配置
// 规则构造完成后不允许修改，保证缓存和共享安全
type Options struct {
	// AppliesTo 规则适用的值类型，nil 表示任意类型
	AppliesTo reflect.Type
	// Message 显式配置的错误消息，为空时在加入集合时计算默认消息
	Message string
	// RuleSet 规则集名称，空字符串表示全局分区
	RuleSet string
	// Severity 严重级别
	Severity Severity
	// UseMessageProvider 为 true 时错误消息交给外部消息提供者生成
	UseMessageProvider bool
}

// Rule 验证规则接口
// 设计原则：固定能力集合（验证、等价判断、默认消息），不依赖继承层次
type Rule interface {
	// Options 返回规则配置
	Options() Options

	// Validate 对成员当前值执行验证，返回 false 表示验证失败
	// target 为目标对象（静态上下文为 nil），value 为成员值
	Validate(ctx context.Context, target, value any, member Member) bool

	// IsEquivalent 判断两个规则是否等价
	// 只会在 other 与自身具体类型相同、规则集分区相同时调用
	IsEquivalent(other Rule) bool

	// DefaultMessage 根据可读成员名和种类生成默认消息
	DefaultMessage(displayName string, kind MemberKind) string
}

// Option 规则配置选项
type Option func(*Options)

// WithMessage 设置错误消息
func WithMessage(message string) Option {
	return func(o *Options) {
		o.Message = message
	}
}

// WithRuleSet 设置规则集
func WithRuleSet(ruleSet string) Option {
	return func(o *Options) {
		o.RuleSet = ruleSet
	}
}

// WithSeverity 设置严重级别
func WithSeverity(severity Severity) Option {
	return func(o *Options) {
		o.Severity = severity
	}
}

// WithMessageProvider 将错误消息交给外部消息提供者
func WithMessageProvider() Option {
	return func(o *Options) {
		o.UseMessageProvider = true
	}
}

// AppliesTo 限定规则适用的值类型
func AppliesTo(t reflect.Type) Option {
	return func(o *Options) {
		o.AppliesTo = t
	}
}

// Base 规则公共配置，供具体规则嵌入
// 只提供 Options 方法，其余能力由具体规则实现
type Base struct {
	opts Options
}

// NewBase 根据选项创建公共配置
func NewBase(opts ...Option) Base {
	var b Base
	for _, opt := range opts {
		if opt != nil {
			opt(&b.opts)
		}
	}
	return b
}

// Options 实现 Rule 接口
func (b Base) Options() Options {
	return b.opts
}

// SameConfig 比较两个规则的公共配置是否一致
// 具体规则在 IsEquivalent 中通常先调用该方法
func (b Base) SameConfig(other Rule) bool {
	o := other.Options()
	return b.opts.AppliesTo == o.AppliesTo &&
		b.opts.Message == o.Message &&
		b.opts.Severity == o.Severity &&
		b.opts.UseMessageProvider == o.UseMessageProvider
}

// NormalizeRuleSet 规则集名称规范化：空字符串为全局分区，其余转为大写
func NormalizeRuleSet(ruleSet string) string {
	if ruleSet == "" {
		return ""
	}
	return strings.ToUpper(ruleSet)
}

// SameKind 判断两个规则是否为同一具体类型
func SameKind(a, b Rule) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// SameInstance 判断两个规则是否为同一实例
// 指针类规则比较地址；值类型规则只在可比较时比较值，避免 == 触发 panic
func SameInstance(a, b Rule) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}
