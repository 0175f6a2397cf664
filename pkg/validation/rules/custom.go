package rules

import (
	"context"
	"fmt"

	"katydid-common-validation/pkg/validation/core"
)

// Predicate 自定义验证函数
type Predicate func(ctx context.Context, target, value any) bool

// Custom 自定义规则，名称相同且配置相同即视为等价
type Custom struct {
	core.Base
	name string
	fn   Predicate
}

// NewCustom 创建自定义规则
func NewCustom(name string, fn Predicate, opts ...core.Option) *Custom {
	return &Custom{Base: core.NewBase(opts...), name: name, fn: fn}
}

// Name 规则名称
func (r *Custom) Name() string {
	return r.name
}

// Validate 实现 core.Rule 接口
func (r *Custom) Validate(ctx context.Context, target, value any, _ core.Member) bool {
	if r.fn == nil {
		return true
	}
	return r.fn(ctx, target, value)
}

// IsEquivalent 实现 core.Rule 接口
func (r *Custom) IsEquivalent(other core.Rule) bool {
	o, ok := other.(*Custom)
	return ok && r.SameConfig(other) && o.name == r.name
}

// DefaultMessage 实现 core.Rule 接口
func (r *Custom) DefaultMessage(displayName string, kind core.MemberKind) string {
	return fmt.Sprintf("The %s %s is invalid (%s).", kind.Label(), displayName, r.name)
}
