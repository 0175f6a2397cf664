package rules

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/cockroachdb/errors"

	"katydid-common-validation/pkg/validation/core"
)

// Pattern 正则规则，只适用于字符串；nil 和空字符串视为通过
type Pattern struct {
	core.Base
	re *regexp.Regexp
}

// NewPattern 创建正则规则，表达式无效时返回 ErrInvalidRuleArgs
func NewPattern(expr string, opts ...core.Option) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "pattern %q: %v", expr, err)
	}
	opts = append([]core.Option{core.AppliesTo(reflect.TypeOf((*string)(nil)).Elem())}, opts...)
	return &Pattern{Base: core.NewBase(opts...), re: re}, nil
}

// MustPattern 创建正则规则，表达式无效时 panic
func MustPattern(expr string, opts ...core.Option) *Pattern {
	p, err := NewPattern(expr, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Expr 正则表达式
func (r *Pattern) Expr() string {
	return r.re.String()
}

// Validate 实现 core.Rule 接口
func (r *Pattern) Validate(_ context.Context, _, value any, _ core.Member) bool {
	if value == nil {
		return true
	}
	s, ok := convert[string](value)
	if !ok {
		return false
	}
	return s == "" || r.re.MatchString(s)
}

// IsEquivalent 实现 core.Rule 接口
func (r *Pattern) IsEquivalent(other core.Rule) bool {
	o, ok := other.(*Pattern)
	return ok && r.SameConfig(other) && o.re.String() == r.re.String()
}

// DefaultMessage 实现 core.Rule 接口
func (r *Pattern) DefaultMessage(displayName string, kind core.MemberKind) string {
	return fmt.Sprintf("The %s %s does not match the required format.", kind.Label(), displayName)
}
