package descriptor

import (
	"reflect"

	"katydid-common-validation/pkg/validation/core"
)

// ============================================================================
// 规则来源契约 - 外部协作者
// ============================================================================

// RuleSource 规则来源
// 职责：按类型/方法提供有序的 “成员名 -> 规则列表” 映射
// 描述符缓存不关心规则来自代码注册还是外部配置文件
type RuleSource interface {
	// TypeRules 返回类型（结构体或接口）的成员规则，没有时返回 nil
	TypeRules(t reflect.Type) (*TypeRules, error)

	// MethodRules 返回方法或函数的参数规则，没有时返回 nil
	MethodRules(key MethodKey) (*MethodRules, error)

	// Interfaces 返回声明了规则的接口类型，构建时检查目标类型是否实现
	Interfaces() []reflect.Type
}

// TypeRules 一个类型的成员规则
type TypeRules struct {
	// Members 成员规则（保持声明顺序）
	Members []MemberRules
	// Statics 静态成员
	Statics []StaticMember
}

// MemberRules 单个成员的规则
type MemberRules struct {
	// Name 成员名，可以是字段名、json tag 名、getter 方法名或限定名（Iface.Method）
	Name string
	// Accessor 实际读取的字段或方法名，为空时与 Name 相同
	Accessor string
	// Rules 有序规则列表
	Rules []core.Rule
	// AlwaysInclude 没有规则时也保留该成员
	AlwaysInclude bool
}

// StaticMember 静态成员（不依赖实例，由取值函数读取）
type StaticMember struct {
	Name          string
	Type          reflect.Type
	Get           func() any
	Rules         []core.Rule
	AlwaysInclude bool
}

// MethodKey 方法标识
// Receiver 为 nil 时表示普通函数，Name 为运行时函数全名
type MethodKey struct {
	Receiver reflect.Type
	Name     string
}

// String 返回可读标识
func (k MethodKey) String() string {
	if k.Receiver == nil {
		return k.Name
	}
	return k.Receiver.String() + "." + k.Name
}

// MethodRules 方法参数规则
type MethodRules struct {
	Params []ParamRules
}

// ParamRules 单个参数的规则
type ParamRules struct {
	// Position 参数位置（不含接收者，从 0 开始）
	Position int
	// Name 参数名，为空时使用 argN
	Name string
	// Rules 有序规则列表
	Rules []core.Rule
	// Out 输出参数标记，带该标记的参数不能被描述
	Out bool
}

// emptySource 没有任何规则的来源
type emptySource struct{}

func (emptySource) TypeRules(reflect.Type) (*TypeRules, error)  { return nil, nil }
func (emptySource) MethodRules(MethodKey) (*MethodRules, error) { return nil, nil }
func (emptySource) Interfaces() []reflect.Type                  { return nil }
