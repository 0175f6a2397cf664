package manager

import (
	"context"

	"github.com/cockroachdb/errors"

	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/descriptor"
)

// CallValidator 方法/函数实参验证
// 可变参数按切片整体作为最后一个实参传入
type CallValidator struct {
	method   *descriptor.MethodDescriptor
	ruleSet  string
	ctx      context.Context
	provider core.MessageProvider
}

// NewCallValidator 创建实参验证器
func NewCallValidator(method *descriptor.MethodDescriptor, ruleSet string, opts ...Option) *CallValidator {
	// 复用会话选项
	m := &Manager{ctx: context.Background()}
	for _, opt := range opts {
		opt(m)
	}
	return &CallValidator{
		method:   method,
		ruleSet:  core.NormalizeRuleSet(ruleSet),
		ctx:      m.ctx,
		provider: m.provider,
	}
}

// Method 方法描述符
func (v *CallValidator) Method() *descriptor.MethodDescriptor {
	return v.method
}

// Validate 验证全部实参并聚合错误，receiver 为方法接收者（普通函数为 nil）
func (v *CallValidator) Validate(receiver any, args ...any) error {
	if err := v.checkCount(args); err != nil {
		return err
	}

	var out core.ValidationErrors
	for i, param := range v.method.Params() {
		value := param.Unwrap(args[i])
		for _, entry := range param.Rules().RulesForRuleSet(v.ruleSet) {
			if verr := entry.Evaluate(v.ctx, v.provider, receiver, value); verr != nil {
				out = append(out, verr)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ValidateFailFast 遇到第一个失败规则立即返回 *core.GuardError
func (v *CallValidator) ValidateFailFast(receiver any, args ...any) error {
	if err := v.checkCount(args); err != nil {
		return err
	}

	for i, param := range v.method.Params() {
		value := param.Unwrap(args[i])
		for _, entry := range param.Rules().RulesForRuleSet(v.ruleSet) {
			if verr := entry.Evaluate(v.ctx, v.provider, receiver, value); verr != nil {
				return &core.GuardError{
					Rule:    entry.Rule(),
					Member:  param.Name(),
					Value:   value,
					Message: verr.Message(),
				}
			}
		}
	}
	return nil
}

func (v *CallValidator) checkCount(args []any) error {
	if len(args) != v.method.NumParams() {
		return errors.Wrapf(core.ErrArgumentCount, "%s takes %d arguments, got %d",
			v.method.Key(), v.method.NumParams(), len(args))
	}
	return nil
}
