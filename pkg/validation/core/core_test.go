package core_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katydid-common-validation/pkg/validation/core"
)

// positive 测试用规则：值必须为正数
type positive struct {
	core.Base
}

func (r *positive) Validate(_ context.Context, _, value any, _ core.Member) bool {
	n, ok := value.(int)
	return ok && n > 0
}

func (r *positive) IsEquivalent(other core.Rule) bool { return r.SameConfig(other) }

func (r *positive) DefaultMessage(name string, kind core.MemberKind) string {
	return fmt.Sprintf("%s %s must be positive", kind.Label(), name)
}

// tags 不可比较的值类型规则
type tags struct {
	core.Base
	values []string
}

func (r tags) Validate(context.Context, any, any, core.Member) bool { return true }
func (r tags) IsEquivalent(core.Rule) bool                          { return false }
func (r tags) DefaultMessage(string, core.MemberKind) string        { return "" }

type fakeMember struct {
	name string
	kind core.MemberKind
}

func (m fakeMember) Name() string          { return m.name }
func (m fakeMember) Type() reflect.Type    { return reflect.TypeOf((*int)(nil)).Elem() }
func (m fakeMember) Kind() core.MemberKind { return m.kind }

// TestHumanizeName 测试可读名称拆分
func TestHumanizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"驼峰", "FirstName", "First Name"},
		{"缩写", "HTTPStatusCode", "HTTP Status Code"},
		{"下划线", "user_id", "user id"},
		{"数字", "Address2Line", "Address 2 Line"},
		{"限定名取最后一段", "Named.GetName", "Get Name"},
		{"单词", "age", "age"},
		{"空", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.HumanizeName(tt.in))
		})
	}
}

// TestOptions 测试规则公共配置
func TestOptions(t *testing.T) {
	r := &positive{Base: core.NewBase(
		core.WithMessage("msg"),
		core.WithRuleSet("strict"),
		core.WithSeverity(core.SeverityWarning),
		core.AppliesTo(reflect.TypeOf((*int)(nil)).Elem()),
		nil,
	)}
	opts := r.Options()
	assert.Equal(t, "msg", opts.Message)
	assert.Equal(t, "strict", opts.RuleSet)
	assert.Equal(t, core.SeverityWarning, opts.Severity)
	assert.Equal(t, reflect.TypeOf((*int)(nil)).Elem(), opts.AppliesTo)
	assert.False(t, opts.UseMessageProvider)

	assert.Equal(t, "", core.NormalizeRuleSet(""))
	assert.Equal(t, "STRICT", core.NormalizeRuleSet("Strict"))
	assert.Equal(t, "warning", core.SeverityWarning.String())
	assert.Equal(t, "error", core.SeverityError.String())
	assert.Equal(t, "member", core.KindField.Label())
	assert.Equal(t, "property", core.KindProperty.Label())
	assert.Equal(t, "parameter", core.KindParameter.Label())
}

// TestSameInstance 测试规则实例比较
func TestSameInstance(t *testing.T) {
	a := &positive{}
	b := &positive{}
	assert.True(t, core.SameInstance(a, a))
	assert.False(t, core.SameInstance(a, b))
	assert.True(t, core.SameKind(a, b))

	// 不可比较的值类型规则不会 panic
	x := tags{values: []string{"a"}}
	assert.NotPanics(t, func() {
		assert.False(t, core.SameInstance(x, x))
	})
	assert.False(t, core.SameKind(a, x))
}

// TestEvaluate 测试规则执行与消息解析
func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	member := fakeMember{name: "MaxCount", kind: core.KindProperty}

	t.Run("通过返回nil", func(t *testing.T) {
		assert.Nil(t, core.Evaluate(ctx, &positive{}, "", nil, nil, 3, member))
	})

	t.Run("失败使用集合中解析的消息", func(t *testing.T) {
		err := core.Evaluate(ctx, &positive{}, "resolved", nil, nil, -1, member)
		require.NotNil(t, err)
		assert.Equal(t, "resolved", err.Message())
		assert.Equal(t, -1, err.AttemptedValue())
		assert.Equal(t, "MaxCount", err.MemberName())
		assert.Equal(t, "MaxCount: resolved", err.Error())
	})

	t.Run("没有消息时使用默认消息", func(t *testing.T) {
		err := core.Evaluate(ctx, &positive{}, "", nil, nil, 0, member)
		require.NotNil(t, err)
		assert.Equal(t, "property Max Count must be positive", err.Message())
	})

	t.Run("外部消息提供者", func(t *testing.T) {
		rule := &positive{Base: core.NewBase(core.WithMessageProvider())}
		var seen any
		provider := func(_ context.Context, r core.Rule, _, value any) string {
			seen = value
			return fmt.Sprintf("bad value %v", value)
		}
		err := core.Evaluate(ctx, rule, "", provider, nil, -5, member)
		require.NotNil(t, err)
		assert.Equal(t, "bad value -5", err.Message())
		assert.Equal(t, -5, seen)
	})

	t.Run("未标记的规则不调用提供者", func(t *testing.T) {
		called := false
		provider := func(context.Context, core.Rule, any, any) string {
			called = true
			return "x"
		}
		err := core.Evaluate(ctx, &positive{}, "own", provider, nil, -5, member)
		require.NotNil(t, err)
		assert.False(t, called)
		assert.Equal(t, "own", err.Message())
	})
}

// TestValidationErrors 测试错误集合
func TestValidationErrors(t *testing.T) {
	warn := &positive{Base: core.NewBase(core.WithSeverity(core.SeverityWarning))}
	errs := core.ValidationErrors{
		core.NewValidationError(&positive{}, "a is bad", 0, fakeMember{name: "A"}),
		core.NewValidationError(warn, "b is bad", 0, fakeMember{name: "B"}),
		core.NewValidationError(&positive{}, "a again", 0, fakeMember{name: "A"}),
	}

	assert.True(t, errs.HasErrors())
	assert.Equal(t, []string{"a is bad", "b is bad", "a again"}, errs.Messages())
	assert.Equal(t, []string{"A", "B"}, errs.Members())
	assert.Len(t, errs.ByMember("A"), 2)
	assert.Equal(t, "a is bad", errs.First().Message())
	assert.Equal(t, core.SeverityWarning, errs[1].Severity())
	assert.Contains(t, errs.Error(), "b is bad")

	var err error = errs
	assert.True(t, errors.Is(err, core.ErrValidationFailed))
	assert.Nil(t, core.ValidationErrors(nil).First())

	guard := &core.GuardError{Member: "A", Message: "a is bad"}
	assert.Equal(t, "A: a is bad", guard.Error())
	assert.True(t, errors.Is(guard, core.ErrValidationFailed))
}
