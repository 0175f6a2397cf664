package rules

import (
	"cmp"
	"context"
	"fmt"
	"reflect"

	"katydid-common-validation/pkg/validation/core"
)

// Range 闭区间规则 [Min, Max]
// 规则适用类型为 T，可空成员（*T）同样适用；nil 值视为通过
type Range[T cmp.Ordered] struct {
	core.Base
	min T
	max T
}

// NewRange 创建区间规则
func NewRange[T cmp.Ordered](min, max T, opts ...core.Option) *Range[T] {
	opts = append([]core.Option{core.AppliesTo(reflect.TypeOf((*T)(nil)).Elem())}, opts...)
	return &Range[T]{Base: core.NewBase(opts...), min: min, max: max}
}

// Min 下界
func (r *Range[T]) Min() T {
	return r.min
}

// Max 上界
func (r *Range[T]) Max() T {
	return r.max
}

// Validate 实现 core.Rule 接口
func (r *Range[T]) Validate(_ context.Context, _, value any, _ core.Member) bool {
	if value == nil {
		return true
	}
	v, ok := convert[T](value)
	if !ok {
		return false
	}
	return cmp.Compare(v, r.min) >= 0 && cmp.Compare(v, r.max) <= 0
}

// IsEquivalent 实现 core.Rule 接口
func (r *Range[T]) IsEquivalent(other core.Rule) bool {
	o, ok := other.(*Range[T])
	return ok && r.SameConfig(other) && o.min == r.min && o.max == r.max
}

// DefaultMessage 实现 core.Rule 接口
func (r *Range[T]) DefaultMessage(displayName string, kind core.MemberKind) string {
	return fmt.Sprintf("The %s %s must be between %v and %v.", kind.Label(), displayName, r.min, r.max)
}

// convert 把值转换为 T，支持底层类型相同的命名类型以及数值类型之间的转换
func convert[T any](value any) (T, bool) {
	if v, ok := value.(T); ok {
		return v, true
	}

	var zero T
	target := reflect.TypeOf((*T)(nil)).Elem()
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || !rv.Type().ConvertibleTo(target) {
		return zero, false
	}
	if rv.Kind() != target.Kind() && !(isNumber(rv.Kind()) && isNumber(target.Kind())) {
		return zero, false
	}
	return rv.Convert(target).Interface().(T), true
}
