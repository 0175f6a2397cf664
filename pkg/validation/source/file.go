package source

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/descriptor"
)

// Document 外部规则文件
//
//	types:
//	  - name: user
//	    members:
//	      - name: Age
//	        rules:
//	          - rule: range
//	            args: {min: 1, max: 130}
//	            rule_set: strict
//	methods:
//	  - type: user
//	    name: Rename
//	    params:
//	      - position: 0
//	        name: newName
//	        rules:
//	          - rule: required
type Document struct {
	Types   []TypeDoc   `mapstructure:"types" yaml:"types"`
	Methods []MethodDoc `mapstructure:"methods" yaml:"methods"`
}

// TypeDoc 类型规则
type TypeDoc struct {
	Name    string      `mapstructure:"name" yaml:"name"`
	Members []MemberDoc `mapstructure:"members" yaml:"members"`
}

// MemberDoc 成员规则
type MemberDoc struct {
	Name          string    `mapstructure:"name" yaml:"name"`
	Accessor      string    `mapstructure:"accessor" yaml:"accessor"`
	AlwaysInclude bool      `mapstructure:"always_include" yaml:"always_include"`
	Rules         []RuleDoc `mapstructure:"rules" yaml:"rules"`
}

// MethodDoc 方法参数规则
type MethodDoc struct {
	Type   string     `mapstructure:"type" yaml:"type"`
	Name   string     `mapstructure:"name" yaml:"name"`
	Params []ParamDoc `mapstructure:"params" yaml:"params"`
}

// ParamDoc 参数规则
type ParamDoc struct {
	Position int       `mapstructure:"position" yaml:"position"`
	Name     string    `mapstructure:"name" yaml:"name"`
	Out      bool      `mapstructure:"out" yaml:"out"`
	Rules    []RuleDoc `mapstructure:"rules" yaml:"rules"`
}

// RuleDoc 单条规则
type RuleDoc struct {
	Rule               string         `mapstructure:"rule" yaml:"rule"`
	Args               map[string]any `mapstructure:"args" yaml:"args"`
	Message            string         `mapstructure:"message" yaml:"message"`
	RuleSet            string         `mapstructure:"rule_set" yaml:"rule_set"`
	Severity           string         `mapstructure:"severity" yaml:"severity"`
	UseMessageProvider bool           `mapstructure:"use_message_provider" yaml:"use_message_provider"`
}

// options 转换为规则公共配置
func (d RuleDoc) options() []core.Option {
	opts := make([]core.Option, 0, 4)
	if d.Message != "" {
		opts = append(opts, core.WithMessage(d.Message))
	}
	if d.RuleSet != "" {
		opts = append(opts, core.WithRuleSet(d.RuleSet))
	}
	switch strings.ToLower(d.Severity) {
	case "warning", "warn":
		opts = append(opts, core.WithSeverity(core.SeverityWarning))
	case "info":
		opts = append(opts, core.WithSeverity(core.SeverityInfo))
	}
	if d.UseMessageProvider {
		opts = append(opts, core.WithMessageProvider())
	}
	return opts
}

// ParseYAML 解析 YAML 规则文档
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing rule document")
	}
	return &doc, nil
}

// ReadFile 通过 viper 读取规则文件（格式由扩展名决定：yaml / json / toml）
func ReadFile(path string) (*Document, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading rule file %s", path)
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, errors.Wrapf(err, "decoding rule file %s", path)
	}
	return &doc, nil
}

// Loader 把规则文档中的类型名绑定到 Go 类型并写入注册表
type Loader struct {
	factory *Factory
	types   map[string]reflect.Type
}

// NewLoader 创建加载器，factory 为 nil 时使用内置规则工厂
func NewLoader(factory *Factory) *Loader {
	if factory == nil {
		factory = NewFactory()
	}
	return &Loader{factory: factory, types: make(map[string]reflect.Type)}
}

// Bind 把文档中的类型名绑定到 Go 类型
func (l *Loader) Bind(name string, t reflect.Type) *Loader {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	l.types[name] = t
	return l
}

// Bind 把文档中的类型名绑定到类型 T
func Bind[T any](l *Loader, name string) *Loader {
	return l.Bind(name, reflect.TypeOf((*T)(nil)).Elem())
}

// LoadFile 读取规则文件并写入注册表
func (l *Loader) LoadFile(path string, registry *Registry) error {
	doc, err := ReadFile(path)
	if err != nil {
		return err
	}
	return l.Apply(doc, registry)
}

// LoadYAML 解析 YAML 并写入注册表
func (l *Loader) LoadYAML(data []byte, registry *Registry) error {
	doc, err := ParseYAML(data)
	if err != nil {
		return err
	}
	return l.Apply(doc, registry)
}

// Apply 把文档写入注册表，类型名未绑定或规则无法构造时返回错误
func (l *Loader) Apply(doc *Document, registry *Registry) error {
	for _, td := range doc.Types {
		t, err := l.lookup(td.Name)
		if err != nil {
			return err
		}

		builder := registry.Type(t)
		for _, md := range td.Members {
			memberType := memberTypeOf(t, md)
			built, err := l.buildRules(md.Rules, memberType)
			if err != nil {
				return errors.Wrapf(err, "%s.%s", td.Name, md.Name)
			}

			if md.Accessor != "" {
				builder.Alias(md.Name, md.Accessor, built...)
			} else {
				builder.Member(md.Name, built...)
			}
			if md.AlwaysInclude {
				builder.AlwaysInclude(md.Name)
			}
		}
	}

	for _, mdoc := range doc.Methods {
		t, err := l.lookup(mdoc.Type)
		if err != nil {
			return err
		}

		builder := registry.Method(t, mdoc.Name)
		method, _ := methodOf(t, mdoc.Name)
		for _, pd := range mdoc.Params {
			if pd.Out {
				builder.Out(pd.Position)
				continue
			}
			built, err := l.buildRules(pd.Rules, paramTypeOf(method, t, pd.Position))
			if err != nil {
				return errors.Wrapf(err, "%s.%s parameter %d", mdoc.Type, mdoc.Name, pd.Position)
			}
			builder.Param(pd.Position, pd.Name, built...)
		}
	}
	return nil
}

func (l *Loader) lookup(name string) (reflect.Type, error) {
	t, ok := l.types[name]
	if !ok {
		return nil, errors.Newf("rule document references unbound type %q", name)
	}
	return t, nil
}

func (l *Loader) buildRules(docs []RuleDoc, memberType reflect.Type) ([]core.Rule, error) {
	out := make([]core.Rule, 0, len(docs))
	for _, d := range docs {
		rule, err := l.factory.Build(d.Rule, Definition{Args: d.Args, Type: memberType, Options: d.options()})
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// memberTypeOf 成员值类型，无法确定时返回 nil
func memberTypeOf(t reflect.Type, md MemberDoc) reflect.Type {
	name := md.Accessor
	if name == "" {
		name = md.Name
	}

	if t.Kind() == reflect.Struct {
		if field, ok := accessor.LookupField(t, name); ok {
			return field.Type
		}
	}
	if method, ok := methodOf(t, name); ok && method.Type.NumOut() == 1 {
		return method.Type.Out(0)
	}
	return nil
}

func methodOf(t reflect.Type, name string) (reflect.Method, bool) {
	if t.Kind() == reflect.Interface {
		return t.MethodByName(name)
	}
	return reflect.PointerTo(t).MethodByName(name)
}

// paramTypeOf 参数类型（接口方法不含接收者）
func paramTypeOf(method reflect.Method, t reflect.Type, position int) reflect.Type {
	if method.Type == nil {
		return nil
	}
	idx := position
	if t.Kind() != reflect.Interface {
		idx++
	}
	if idx < 0 || idx >= method.Type.NumIn() {
		return nil
	}
	return method.Type.In(idx)
}

var _ descriptor.RuleSource = (*Registry)(nil)
var _ descriptor.RuleSource = Chain(nil)
