package gormhook

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"katydid-common-validation/pkg/validation"
	"katydid-common-validation/pkg/validation/core"
)

const (
	pluginName  = "katydid:validation"
	skipSetting = "katydid:skip_validation"

	// RuleSetCreate 创建时额外验证的规则集
	RuleSetCreate = "create"
	// RuleSetUpdate 更新时额外验证的规则集
	RuleSetUpdate = "update"
)

// Plugin gorm 插件：在创建和更新之前验证模型
// 先验证全局规则，再验证对应操作的规则集；失败时通过 db.AddError 中止本次操作
type Plugin struct {
	engine    *validation.Engine
	createSet string
	updateSet string
}

// Option 插件配置选项
type Option func(*Plugin)

// WithRuleSets 自定义创建/更新使用的规则集
func WithRuleSets(create, update string) Option {
	return func(p *Plugin) {
		p.createSet = create
		p.updateSet = update
	}
}

// New 创建插件，engine 为 nil 时使用默认引擎
func New(engine *validation.Engine, opts ...Option) *Plugin {
	if engine == nil {
		engine = validation.Default()
	}
	p := &Plugin{engine: engine, createSet: RuleSetCreate, updateSet: RuleSetUpdate}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 实现 gorm.Plugin 接口
func (p *Plugin) Name() string {
	return pluginName
}

// Initialize 实现 gorm.Plugin 接口
func (p *Plugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").
		Register(pluginName+":create", p.callback(p.createSet)); err != nil {
		return errors.Wrap(err, "registering create validation")
	}
	if err := db.Callback().Update().Before("gorm:update").
		Register(pluginName+":update", p.callback(p.updateSet)); err != nil {
		return errors.Wrap(err, "registering update validation")
	}
	return nil
}

// Skip 跳过本次操作的验证
func Skip(db *gorm.DB) *gorm.DB {
	return db.Set(skipSetting, true)
}

func (p *Plugin) callback(ruleSet string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Error != nil || db.Statement == nil {
			return
		}
		if skip, ok := db.Get(skipSetting); ok && skip == true {
			return
		}
		// 按列更新（map / 单列）不携带完整模型，不做验证
		if dest := reflect.ValueOf(db.Statement.Dest); dest.Kind() == reflect.Map {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		rv := reflect.Indirect(db.Statement.ReflectValue)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if err := p.validate(ctx, rv.Index(i), ruleSet); err != nil {
					_ = db.AddError(err)
					return
				}
			}
		case reflect.Struct:
			if err := p.validate(ctx, rv, ruleSet); err != nil {
				_ = db.AddError(err)
			}
		}
	}
}

// validate 依次验证全局规则和规则集规则，合并错误
func (p *Plugin) validate(ctx context.Context, v reflect.Value, ruleSet string) error {
	v = reflect.Indirect(v)
	if !v.IsValid() {
		return nil
	}
	var target any
	if v.CanAddr() {
		target = v.Addr().Interface()
	} else {
		target = v.Interface()
	}

	sets := []string{""}
	if ruleSet != "" {
		sets = append(sets, ruleSet)
	}

	var all core.ValidationErrors
	for _, set := range sets {
		err := p.engine.Validate(ctx, target, set)
		if err == nil {
			continue
		}
		var verrs core.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		all = append(all, verrs...)
	}
	if len(all) == 0 {
		return nil
	}

	p.engine.Logger().Debug("model rejected by validation",
		zap.Stringer("type", v.Type()), zap.Int("errors", len(all)))
	return all
}
