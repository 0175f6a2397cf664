package source

import (
	"cmp"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"

	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/rules"
)

// Definition 按名称构造规则时的输入
type Definition struct {
	// Args 规则参数
	Args map[string]any
	// Type 成员值类型，未知时为 nil
	Type reflect.Type
	// Options 公共配置（消息、规则集、严重级别等）
	Options []core.Option
}

// Constructor 规则构造函数
type Constructor func(def Definition) (core.Rule, error)

// Factory 按名称构造规则
// 内置 required / range / length / pattern / compare / tag，可注册自定义规则
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewFactory 创建带内置规则的工厂
func NewFactory() *Factory {
	f := &Factory{ctors: make(map[string]Constructor)}
	f.Register("required", newRequired)
	f.Register("range", newRange)
	f.Register("length", newLength)
	f.Register("pattern", newPattern)
	f.Register("compare", newCompare)
	f.Register("tag", newTag)
	return f
}

// Register 注册规则构造函数，名称大小写不敏感，同名覆盖
func (f *Factory) Register(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[strings.ToLower(name)] = ctor
}

// Names 已注册的规则名称
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		names = append(names, name)
	}
	return names
}

// Build 构造规则，名称未注册时返回 ErrUnknownRule
func (f *Factory) Build(name string, def Definition) (core.Rule, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[strings.ToLower(name)]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(core.ErrUnknownRule, "%q", name)
	}

	rule, err := ctor(def)
	if err != nil {
		return nil, errors.Wrapf(err, "building rule %q", name)
	}
	return rule, nil
}

func newRequired(def Definition) (core.Rule, error) {
	return rules.NewRequired(def.Options...), nil
}

func newLength(def Definition) (core.Rule, error) {
	min, err := cast.ToIntE(argOr(def.Args, "min", 0))
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "length min: %v", err)
	}
	max, err := cast.ToIntE(argOr(def.Args, "max", -1))
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "length max: %v", err)
	}
	return rules.NewLength(min, max, def.Options...), nil
}

func newPattern(def Definition) (core.Rule, error) {
	expr, err := cast.ToStringE(def.Args["expr"])
	if err != nil || expr == "" {
		return nil, errors.Wrap(core.ErrInvalidRuleArgs, "pattern requires expr")
	}
	return rules.NewPattern(expr, def.Options...)
}

func newCompare(def Definition) (core.Rule, error) {
	other := cast.ToString(def.Args["other"])
	op := cast.ToString(argOr(def.Args, "op", string(rules.OpEqual)))
	return rules.NewCompare(other, rules.Operator(op), def.Options...)
}

func newTag(def Definition) (core.Rule, error) {
	return rules.NewTag(cast.ToString(def.Args["expr"]), def.Options...)
}

// newRange 按成员类型选择区间规则的值类型，成员类型未知时使用 float64
func newRange(def Definition) (core.Rule, error) {
	min, max := def.Args["min"], def.Args["max"]
	if min == nil || max == nil {
		return nil, errors.Wrap(core.ErrInvalidRuleArgs, "range requires min and max")
	}

	opts := def.Options
	kind := reflect.Float64
	if def.Type != nil {
		t := def.Type
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		kind = t.Kind()
		// 命名类型（如 type Age int）按成员自身类型声明适用范围
		opts = append(opts[:len(opts):len(opts)], core.AppliesTo(t))
	}

	if bt := boundsType(def.Type); bt != nil {
		if err := checkBounds(bt, min); err != nil {
			return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "range min: %v", err)
		}
		if err := checkBounds(bt, max); err != nil {
			return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "range max: %v", err)
		}
	}

	switch kind {
	case reflect.Int:
		return buildRange(min, max, cast.ToIntE, opts)
	case reflect.Int8:
		return buildRange(min, max, cast.ToInt8E, opts)
	case reflect.Int16:
		return buildRange(min, max, cast.ToInt16E, opts)
	case reflect.Int32:
		return buildRange(min, max, cast.ToInt32E, opts)
	case reflect.Int64:
		return buildRange(min, max, cast.ToInt64E, opts)
	case reflect.Uint:
		return buildRange(min, max, cast.ToUintE, opts)
	case reflect.Uint8:
		return buildRange(min, max, cast.ToUint8E, opts)
	case reflect.Uint16:
		return buildRange(min, max, cast.ToUint16E, opts)
	case reflect.Uint32:
		return buildRange(min, max, cast.ToUint32E, opts)
	case reflect.Uint64:
		return buildRange(min, max, cast.ToUint64E, opts)
	case reflect.Float32:
		return buildRange(min, max, cast.ToFloat32E, opts)
	case reflect.Float64:
		return buildRange(min, max, cast.ToFloat64E, opts)
	case reflect.String:
		return buildRange(min, max, cast.ToStringE, opts)
	}
	return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "range is not supported for %s", kind)
}

// boundsType 需要检查取值范围的成员类型（指针解引用），非整数和 float32 时返回 nil
func boundsType(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32:
		return t
	}
	return nil
}

// checkBounds 参数超出成员类型的取值范围时返回错误，避免转换时被截断
func checkBounds(t reflect.Type, arg any) error {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(arg)
		if err != nil {
			return err
		}
		if v.OverflowInt(n) {
			return errors.Newf("%d overflows %s", n, t)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(arg)
		if err != nil {
			return err
		}
		if v.OverflowUint(n) {
			return errors.Newf("%d overflows %s", n, t)
		}
	case reflect.Float32:
		f, err := cast.ToFloat64E(arg)
		if err != nil {
			return err
		}
		if v.OverflowFloat(f) {
			return errors.Newf("%v overflows %s", f, t)
		}
	}
	return nil
}

func buildRange[T cmp.Ordered](min, max any, conv func(any) (T, error), opts []core.Option) (core.Rule, error) {
	lo, err := conv(min)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "range min: %v", err)
	}
	hi, err := conv(max)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "range max: %v", err)
	}
	if cmp.Compare(lo, hi) > 0 {
		return nil, errors.Wrapf(core.ErrInvalidRuleArgs, "range min %v is greater than max %v", lo, hi)
	}
	return rules.NewRange(lo, hi, opts...), nil
}

func argOr(args map[string]any, key string, fallback any) any {
	if v, ok := args[key]; ok && v != nil {
		return v
	}
	return fallback
}
