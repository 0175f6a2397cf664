package core

import (
	"context"
	"strings"
	"unicode"
)

// MessageProvider 外部错误消息提供者
// 只对配置了 UseMessageProvider 的规则调用
type MessageProvider func(ctx context.Context, rule Rule, target, value any) string

// Evaluate 执行规则并把失败结果转换为 ValidationError
// 参数：
//   - message: 规则在所属集合中解析后的消息（可能为空）
//   - provider: 外部消息提供者（可为 nil）
//
// 返回：验证通过时返回 nil
func Evaluate(ctx context.Context, rule Rule, message string, provider MessageProvider, target, value any, member Member) *ValidationError {
	if rule.Validate(ctx, target, value, member) {
		return nil
	}
	return NewValidationError(rule, ResolveMessage(ctx, rule, message, provider, target, value, member), value, member)
}

// ResolveMessage 计算失败规则的最终消息
// 顺序：外部提供者（规则要求时） -> 集合中解析的消息 -> 规则默认消息
func ResolveMessage(ctx context.Context, rule Rule, message string, provider MessageProvider, target, value any, member Member) string {
	if rule.Options().UseMessageProvider && provider != nil {
		if msg := provider(ctx, rule, target, value); msg != "" {
			return msg
		}
	}
	if message != "" {
		return message
	}
	if member == nil {
		return rule.DefaultMessage("value", KindField)
	}
	return rule.DefaultMessage(HumanizeName(member.Name()), member.Kind())
}

// HumanizeName 把成员名按大小写边界拆分为空格分隔的可读名称
// 例如 FirstName -> First Name, HTTPStatusCode -> HTTP Status Code, user_id -> user id
func HumanizeName(name string) string {
	// 限定名只取最后一段（Iface.Member）
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 && idx < len(name)-1 {
		name = name[idx+1:]
	}

	runes := []rune(name)
	var builder strings.Builder
	builder.Grow(len(name) + 4)

	for i, r := range runes {
		if r == '_' || r == '-' {
			builder.WriteByte(' ')
			continue
		}
		if i > 0 && needSpace(runes, i) {
			builder.WriteByte(' ')
		}
		builder.WriteRune(r)
	}
	return strings.Join(strings.Fields(builder.String()), " ")
}

// needSpace 判断 runes[i] 之前是否需要插入空格
func needSpace(runes []rune, i int) bool {
	prev, cur := runes[i-1], runes[i]
	switch {
	case unicode.IsUpper(cur) && unicode.IsLower(prev):
		return true
	case unicode.IsUpper(cur) && unicode.IsUpper(prev):
		// 缩写结尾：HTTPStatus 中 S 前插入空格
		return i+1 < len(runes) && unicode.IsLower(runes[i+1])
	case unicode.IsDigit(cur) && unicode.IsLetter(prev):
		return true
	case unicode.IsUpper(cur) && unicode.IsDigit(prev):
		return true
	}
	return false
}
