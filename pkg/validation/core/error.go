package core

import (
	"fmt"
	"strings"
)

// ValidationError 单条验证失败结果
// 设计原则：值对象模式，创建后不可变
type ValidationError struct {
	rule    Rule   // 产生错误的规则
	message string // 计算后的错误消息
	value   any    // 尝试验证的值
	member  Member // 所属成员
}

// NewValidationError 创建验证错误
func NewValidationError(rule Rule, message string, value any, member Member) *ValidationError {
	return &ValidationError{
		rule:    rule,
		message: message,
		value:   value,
		member:  member,
	}
}

// Rule 产生错误的规则
func (e *ValidationError) Rule() Rule {
	return e.rule
}

// Message 错误消息
func (e *ValidationError) Message() string {
	return e.message
}

// AttemptedValue 验证时的成员值
func (e *ValidationError) AttemptedValue() any {
	return e.value
}

// Member 所属成员
func (e *ValidationError) Member() Member {
	return e.member
}

// MemberName 所属成员名，成员为空时返回空字符串
func (e *ValidationError) MemberName() string {
	if e.member == nil {
		return ""
	}
	return e.member.Name()
}

// Severity 规则严重级别
func (e *ValidationError) Severity() Severity {
	if e.rule == nil {
		return SeverityError
	}
	return e.rule.Options().Severity
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	if name := e.MemberName(); name != "" {
		return fmt.Sprintf("%s: %s", name, e.message)
	}
	return e.message
}

// Is 支持 errors.Is(err, ErrValidationFailed)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ValidationErrors 验证错误集合
type ValidationErrors []*ValidationError

// Error 实现 error 接口
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}

	var builder strings.Builder
	builder.WriteString("validation failed: ")
	for i, err := range ve {
		if i > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(err.Error())
	}
	return builder.String()
}

// Is 支持 errors.Is(err, ErrValidationFailed)
func (ve ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

// HasErrors 是否有错误
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Messages 所有错误消息
func (ve ValidationErrors) Messages() []string {
	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Message())
	}
	return messages
}

// ByMember 按成员名筛选错误
func (ve ValidationErrors) ByMember(name string) ValidationErrors {
	var errs ValidationErrors
	for _, err := range ve {
		if err.MemberName() == name {
			errs = append(errs, err)
		}
	}
	return errs
}

// Members 出现错误的成员名（按首次出现顺序去重）
func (ve ValidationErrors) Members() []string {
	var names []string
	seen := make(map[string]bool)
	for _, err := range ve {
		name := err.MemberName()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// First 第一条错误，没有错误时返回 nil
func (ve ValidationErrors) First() *ValidationError {
	if len(ve) == 0 {
		return nil
	}
	return ve[0]
}

// GuardError 快速失败模式下的守卫错误，携带第一个失败规则的消息
type GuardError struct {
	Rule    Rule
	Member  string
	Value   any
	Message string
}

// Error 实现 error 接口
func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Member, e.Message)
}

// Is 支持 errors.Is(err, ErrValidationFailed)
func (e *GuardError) Is(target error) bool {
	return target == ErrValidationFailed
}
