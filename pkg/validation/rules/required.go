package rules

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"katydid-common-validation/pkg/validation/core"
)

// Required 必填规则：nil、零值和空白字符串都视为未填写
type Required struct {
	core.Base
}

// NewRequired 创建必填规则
func NewRequired(opts ...core.Option) *Required {
	return &Required{Base: core.NewBase(opts...)}
}

// Validate 实现 core.Rule 接口
func (r *Required) Validate(_ context.Context, _, value any, _ core.Member) bool {
	if value == nil {
		return false
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) != ""
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !v.IsNil()
	}
	return !v.IsZero()
}

// IsEquivalent 实现 core.Rule 接口
func (r *Required) IsEquivalent(other core.Rule) bool {
	return r.SameConfig(other)
}

// DefaultMessage 实现 core.Rule 接口
func (r *Required) DefaultMessage(displayName string, kind core.MemberKind) string {
	return fmt.Sprintf("The %s %s is required.", kind.Label(), displayName)
}
