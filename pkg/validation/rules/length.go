package rules

import (
	"context"
	"fmt"

	"katydid-common-validation/pkg/validation/core"
)

// Length 长度规则，适用于字符串（按字符计数）、切片、映射和数组
// Max 小于 0 表示不限制上限；nil 值视为通过
type Length struct {
	core.Base
	min int
	max int
}

// NewLength 创建长度规则
func NewLength(min, max int, opts ...core.Option) *Length {
	return &Length{Base: core.NewBase(opts...), min: min, max: max}
}

// Validate 实现 core.Rule 接口
func (r *Length) Validate(_ context.Context, _, value any, _ core.Member) bool {
	if value == nil {
		return true
	}
	n, ok := lengthOf(value)
	if !ok {
		return false
	}
	return n >= r.min && (r.max < 0 || n <= r.max)
}

// IsEquivalent 实现 core.Rule 接口
func (r *Length) IsEquivalent(other core.Rule) bool {
	o, ok := other.(*Length)
	return ok && r.SameConfig(other) && o.min == r.min && o.max == r.max
}

// DefaultMessage 实现 core.Rule 接口
func (r *Length) DefaultMessage(displayName string, kind core.MemberKind) string {
	if r.max < 0 {
		return fmt.Sprintf("The %s %s must have a length of at least %d.", kind.Label(), displayName, r.min)
	}
	return fmt.Sprintf("The %s %s must have a length between %d and %d.", kind.Label(), displayName, r.min, r.max)
}
