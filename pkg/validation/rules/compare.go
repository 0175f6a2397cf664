package rules

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/core"
)

// Operator 比较运算符
type Operator string

const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpLess           Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpGreater        Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
)

var operatorText = map[Operator]string{
	OpEqual:          "equal to",
	OpNotEqual:       "different from",
	OpLess:           "less than",
	OpLessOrEqual:    "less than or equal to",
	OpGreater:        "greater than",
	OpGreaterOrEqual: "greater than or equal to",
}

// Compare 与目标对象上另一个成员比较
// 只在实例上下文中有意义；目标为空或另一个成员不可读时视为失败
type Compare struct {
	core.Base
	other string
	op    Operator
}

// NewCompare 创建比较规则，运算符未知时返回 ErrInvalidRuleArgs
func NewCompare(other string, op Operator, opts ...core.Option) (*Compare, error) {
	op = Operator(strings.ToLower(string(op)))
	if _, ok := operatorText[op]; !ok {
		return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "compare operator %q", op)
	}
	if other == "" {
		return nil, errors.Wrap(core.ErrInvalidRuleArgs, "compare requires the other member name")
	}
	return &Compare{Base: core.NewBase(opts...), other: other, op: op}, nil
}

// Other 被比较的成员名
func (r *Compare) Other() string {
	return r.other
}

// Operator 比较运算符
func (r *Compare) Operator() Operator {
	return r.op
}

// Validate 实现 core.Rule 接口
func (r *Compare) Validate(_ context.Context, target, value any, _ core.Member) bool {
	other, ok := readMember(target, r.other)
	if !ok {
		return false
	}
	return r.apply(value, other)
}

func (r *Compare) apply(value, other any) bool {
	if r.op == OpEqual || r.op == OpNotEqual {
		equal := reflect.DeepEqual(value, other)
		if a, okA := toFloat(value); okA {
			if b, okB := toFloat(other); okB {
				equal = a == b
			}
		}
		return equal == (r.op == OpEqual)
	}

	c, ok := order(value, other)
	if !ok {
		return false
	}
	switch r.op {
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	default:
		return c >= 0
	}
}

// IsEquivalent 实现 core.Rule 接口
func (r *Compare) IsEquivalent(other core.Rule) bool {
	o, ok := other.(*Compare)
	return ok && r.SameConfig(other) && o.other == r.other && o.op == r.op
}

// DefaultMessage 实现 core.Rule 接口
func (r *Compare) DefaultMessage(displayName string, kind core.MemberKind) string {
	return fmt.Sprintf("The %s %s must be %s %s.", kind.Label(), displayName,
		operatorText[r.op], core.HumanizeName(r.other))
}

// order 比较数值或字符串
func order(a, b any) (int, bool) {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}

	x, okA := convert[string](a)
	y, okB := convert[string](b)
	if !okA || !okB {
		return 0, false
	}
	return strings.Compare(x, y), true
}

// readMember 读取目标上的字段（含 json tag 名）或 getter 方法
func readMember(target any, name string) (any, bool) {
	if target == nil {
		return nil, false
	}
	t := reflect.TypeOf(target)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}

	provider := accessor.Default()
	if field, ok := accessor.LookupField(t, name); ok && field.IsExported() {
		return provider.Field(t, field)(target)
	}
	if fn, ok := provider.Method(t, name); ok {
		return fn(target)
	}
	return nil, false
}
