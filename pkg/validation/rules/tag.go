package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"katydid-common-validation/pkg/validation/core"
)

var (
	tagValidator     *validator.Validate
	tagValidatorOnce sync.Once
)

// TagValidator 全局 go-playground 验证器（单例），可在启动阶段注册自定义 tag
func TagValidator() *validator.Validate {
	tagValidatorOnce.Do(func() {
		tagValidator = validator.New()
	})
	return tagValidator
}

// Tag 使用 go-playground/validator 的 tag 表达式验证成员值，例如 "email"、"min=3,max=20"
// nil 值只有在表达式包含 required 时才视为失败
type Tag struct {
	core.Base
	tag      string
	validate *validator.Validate
}

// NewTag 创建 tag 规则
func NewTag(tag string, opts ...core.Option) (*Tag, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, errors.Wrap(core.ErrInvalidRuleArgs, "empty validation tag")
	}
	return &Tag{Base: core.NewBase(opts...), tag: tag, validate: TagValidator()}, nil
}

// Expr tag 表达式
func (r *Tag) Expr() string {
	return r.tag
}

// Validate 实现 core.Rule 接口
func (r *Tag) Validate(ctx context.Context, _, value any, _ core.Member) bool {
	if value == nil {
		return !strings.Contains(r.tag, "required")
	}
	return r.validate.VarCtx(ctx, value, r.tag) == nil
}

// IsEquivalent 实现 core.Rule 接口
func (r *Tag) IsEquivalent(other core.Rule) bool {
	o, ok := other.(*Tag)
	return ok && r.SameConfig(other) && o.tag == r.tag
}

// DefaultMessage 实现 core.Rule 接口
func (r *Tag) DefaultMessage(displayName string, kind core.MemberKind) string {
	return fmt.Sprintf("The %s %s failed the '%s' check.", kind.Label(), displayName, r.tag)
}
