package manager

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/descriptor"
)

// planItem 计划中的一个成员及其适用规则
type planItem struct {
	member  *descriptor.MemberDescriptor
	entries []*descriptor.RuleEntry
}

// Manager 验证会话
// 职责：
//   - 绑定一个目标（实例或静态类型）和一个规则集过滤条件
//   - 在创建时冻结验证计划（成员 -> 适用规则）
//   - 维护以规则条目为键的错误表，支持按成员增量重新验证
//
// 非线程安全：一个会话只在单个 goroutine 中使用
type Manager struct {
	target   any
	typ      reflect.Type
	static   bool
	ruleSet  string
	ctx      context.Context
	provider core.MessageProvider
	logger   *zap.Logger

	plan   []planItem
	index  map[string]int
	errors map[*descriptor.RuleEntry]*core.ValidationError
}

// Option 会话配置选项
type Option func(*Manager)

// WithContext 设置传递给规则的上下文
func WithContext(ctx context.Context) Option {
	return func(m *Manager) {
		if ctx != nil {
			m.ctx = ctx
		}
	}
}

// WithMessageProvider 设置外部错误消息提供者
func WithMessageProvider(provider core.MessageProvider) Option {
	return func(m *Manager) {
		m.provider = provider
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewForInstance 为实例创建验证会话，计划包含实例成员和静态成员
func NewForInstance(cache *descriptor.Cache, target any, ruleSet string, opts ...Option) (*Manager, error) {
	if target == nil {
		return nil, errors.Wrap(core.ErrNotStruct, "nil validation target")
	}
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, errors.Wrapf(core.ErrNotStruct, "nil %T validation target", target)
	}

	desc, err := cache.Type(v.Type())
	if err != nil {
		return nil, err
	}
	return newManager(target, desc, false, desc.Members(), ruleSet, opts), nil
}

// NewForType 为静态类型创建验证会话，计划只包含静态成员
func NewForType(cache *descriptor.Cache, t reflect.Type, ruleSet string, opts ...Option) (*Manager, error) {
	desc, err := cache.Type(t)
	if err != nil {
		return nil, err
	}
	return newManager(nil, desc, true, desc.StaticMembers(), ruleSet, opts), nil
}

func newManager(target any, desc *descriptor.TypeDescriptor, static bool, members []*descriptor.MemberDescriptor, ruleSet string, opts []Option) *Manager {
	m := &Manager{
		target:  target,
		typ:     desc.Type(),
		static:  static,
		ruleSet: core.NormalizeRuleSet(ruleSet),
		ctx:     context.Background(),
		logger:  zap.NewNop(),
		index:   make(map[string]int, len(members)),
		errors:  make(map[*descriptor.RuleEntry]*core.ValidationError),
	}
	for _, opt := range opts {
		opt(m)
	}

	// 冻结计划：只保留在当前规则集下有规则的成员
	for _, member := range members {
		entries := member.Rules().RulesForRuleSet(m.ruleSet)
		if len(entries) == 0 {
			continue
		}
		m.index[member.Name()] = len(m.plan)
		m.plan = append(m.plan, planItem{member: member, entries: entries})
	}
	return m
}

// Target 验证目标（静态会话为 nil）
func (m *Manager) Target() any {
	return m.target
}

// Type 目标类型
func (m *Manager) Type() reflect.Type {
	return m.typ
}

// Static 是否为静态类型会话
func (m *Manager) Static() bool {
	return m.static
}

// RuleSet 规范化后的规则集过滤条件
func (m *Manager) RuleSet() string {
	return m.ruleSet
}

// Members 计划中的成员名（按计划顺序）
func (m *Manager) Members() []string {
	names := make([]string, len(m.plan))
	for i, item := range m.plan {
		names[i] = item.member.Name()
	}
	return names
}

// ValidateAll 清空错误表并验证计划中的所有成员
func (m *Manager) ValidateAll() bool {
	clear(m.errors)
	for i := range m.plan {
		m.checkMember(&m.plan[i], m.valueOf(m.plan[i].member))
	}

	m.logger.Debug("validated all members",
		zap.Stringer("type", m.typ),
		zap.String("rule_set", m.ruleSet),
		zap.Int("members", len(m.plan)),
		zap.Int("errors", len(m.errors)))
	return m.IsValid()
}

// Validate 只重新验证指定成员，其他成员的错误保持不变
// 成员不在计划中时静默忽略
func (m *Manager) Validate(name string) bool {
	idx, ok := m.index[name]
	if !ok {
		m.logger.Debug("member not in validation plan",
			zap.Stringer("type", m.typ), zap.String("member", name))
		return m.IsValid()
	}

	item := &m.plan[idx]
	m.checkMember(item, m.valueOf(item.member))
	return m.IsValid()
}

// ValidateFailFast 快速失败：按顺序执行成员规则，遇到第一个失败立即返回 *core.GuardError
// value 为待检查的值，不修改错误表；成员不在计划中时返回 nil
func (m *Manager) ValidateFailFast(ctx context.Context, name string, value any) error {
	idx, ok := m.index[name]
	if !ok {
		return nil
	}
	if ctx == nil {
		ctx = m.ctx
	}

	item := &m.plan[idx]
	value = item.member.Unwrap(value)
	for _, entry := range item.entries {
		if verr := entry.Evaluate(ctx, m.provider, m.target, value); verr != nil {
			return &core.GuardError{
				Rule:    entry.Rule(),
				Member:  name,
				Value:   value,
				Message: verr.Message(),
			}
		}
	}
	return nil
}

// IsValid 错误表为空时返回 true
func (m *Manager) IsValid() bool {
	return len(m.errors) == 0
}

// ValidationErrors 当前错误（按计划和规则顺序）
func (m *Manager) ValidationErrors() core.ValidationErrors {
	var out core.ValidationErrors
	for _, item := range m.plan {
		out = append(out, m.collect(item)...)
	}
	return out
}

// ErrorsFor 指定成员的当前错误
func (m *Manager) ErrorsFor(name string) core.ValidationErrors {
	idx, ok := m.index[name]
	if !ok {
		return nil
	}
	return m.collect(m.plan[idx])
}

// ErrorMessages 当前错误消息
func (m *Manager) ErrorMessages() []string {
	return m.ValidationErrors().Messages()
}

// Err 当前错误作为 error 返回，没有错误时返回 nil
func (m *Manager) Err() error {
	if m.IsValid() {
		return nil
	}
	return m.ValidationErrors()
}

// checkMember 执行成员的全部规则（不短路），每条规则最多保留一个错误
func (m *Manager) checkMember(item *planItem, value any) {
	for _, entry := range item.entries {
		delete(m.errors, entry)
		if verr := entry.Evaluate(m.ctx, m.provider, m.target, value); verr != nil {
			m.errors[entry] = verr
		}
	}
}

// valueOf 读取成员当前值，可空成员解包
func (m *Manager) valueOf(member *descriptor.MemberDescriptor) any {
	value, ok := member.Value(m.target)
	if !ok {
		return nil
	}
	return member.Unwrap(value)
}

func (m *Manager) collect(item planItem) core.ValidationErrors {
	var out core.ValidationErrors
	for _, entry := range item.entries {
		if verr, ok := m.errors[entry]; ok {
			out = append(out, verr)
		}
	}
	return out
}
