package descriptor

import (
	"reflect"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/core"
)

// MemberDescriptor 成员描述符（字段 / 属性 / 参数）
// 名称、类型不可变；规则集合可变，但发布到缓存后视为只读
type MemberDescriptor struct {
	name          string
	typ           reflect.Type
	kind          core.MemberKind
	static        bool
	position      int    // 参数位置，非参数为 -1
	source        string // 实际读取的字段/方法名
	alwaysInclude bool
	access        accessor.Func
	rules         *RuleCollection
}

// newMember 创建成员描述符
func newMember(name string, typ reflect.Type, kind core.MemberKind, access accessor.Func) *MemberDescriptor {
	m := &MemberDescriptor{
		name:     name,
		typ:      typ,
		kind:     kind,
		position: -1,
		source:   name,
		access:   access,
	}
	m.rules = newRuleCollection(m)
	return m
}

// newParameter 创建参数描述符
func newParameter(name string, typ reflect.Type, position int) *MemberDescriptor {
	m := newMember(name, typ, core.KindParameter, nil)
	m.position = position
	return m
}

// Name 实现 core.Member 接口
func (m *MemberDescriptor) Name() string {
	return m.name
}

// Type 实现 core.Member 接口
func (m *MemberDescriptor) Type() reflect.Type {
	return m.typ
}

// Kind 实现 core.Member 接口
func (m *MemberDescriptor) Kind() core.MemberKind {
	return m.kind
}

// Static 是否为静态成员
func (m *MemberDescriptor) Static() bool {
	return m.static
}

// Position 参数位置，非参数返回 -1
func (m *MemberDescriptor) Position() int {
	return m.position
}

// SourceName 实际读取的字段或方法名（别名成员与 Name 不同）
func (m *MemberDescriptor) SourceName() string {
	return m.source
}

// AlwaysInclude 是否无论有无规则都保留在类型描述符中
func (m *MemberDescriptor) AlwaysInclude() bool {
	return m.alwaysInclude
}

// Nullable 成员是否为可空值类型
func (m *MemberDescriptor) Nullable() bool {
	return IsNullable(m.typ)
}

// Rules 成员的规则集合
func (m *MemberDescriptor) Rules() *RuleCollection {
	return m.rules
}

// Value 读取成员在 target 上的当前值
// 参数描述符没有访问器，始终返回 false
func (m *MemberDescriptor) Value(target any) (any, bool) {
	if m.access == nil {
		return nil, false
	}
	return m.access(target)
}

// Unwrap 可空成员的值解包：nil 指针返回 nil，否则返回指向的值
func (m *MemberDescriptor) Unwrap(value any) any {
	if !m.Nullable() || value == nil {
		return value
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Pointer {
		return value
	}
	if v.IsNil() {
		return nil
	}
	return v.Elem().Interface()
}

// cloneFor 为派生类型克隆成员（规则由调用方合并）
func (m *MemberDescriptor) cloneFor(access accessor.Func) *MemberDescriptor {
	clone := newMember(m.name, m.typ, m.kind, access)
	clone.source = m.source
	clone.alwaysInclude = m.alwaysInclude
	return clone
}
