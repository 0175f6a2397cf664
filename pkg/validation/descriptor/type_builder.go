package descriptor

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/core"
)

// buildType 构建类型描述符
//
// 构建流程（按顺序执行）：
//  1. 收集类型自身声明的可读成员（字段、getter 方法），应用规则来源中的成员规则和静态成员
//  2. 把已实现接口上的成员规则合并到实现成员（限定名优先，已由基类型认领的接口跳过）
//  3. 在反射策略允许时递归获取基类型（嵌入结构体）描述符，同名成员合并，否则克隆
//  4. 只保留有规则或标记为总是保留的成员
//  5. 冻结成员快照
func (c *Cache) buildType(t reflect.Type) (*TypeDescriptor, error) {
	switch t.Kind() {
	case reflect.Interface:
		return nil, errors.Wrapf(core.ErrInterfaceType, "%s", t)
	case reflect.Struct:
	default:
		return nil, errors.Wrapf(core.ErrNotStruct, "%s is %s", t, t.Kind())
	}

	table := newMemberSet(t.NumField())
	c.collectOwn(t, table)

	rules, err := c.source.TypeRules(t)
	if err != nil {
		return nil, errors.Wrapf(err, "loading rules for %s", t)
	}
	if rules != nil {
		if err := c.applyStatics(t, table, rules.Statics); err != nil {
			return nil, err
		}
		if err := c.applyMemberRules(t, table, rules.Members); err != nil {
			return nil, err
		}
	}

	bases := embeddedBases(t)
	if err := c.applyInterfaces(t, table, bases); err != nil {
		return nil, err
	}
	if err := c.applyBases(t, table, bases); err != nil {
		return nil, err
	}

	set := newMemberSet(len(table.order))
	for _, m := range table.order {
		if m.rules.Len() > 0 || m.alwaysInclude {
			set.add(m)
		}
	}

	desc := &TypeDescriptor{typ: t, access: c.access}
	desc.members.Store(set)

	c.logger.Debug("type descriptor built",
		zap.Stringer("type", t),
		zap.Int("members", len(set.order)),
		zap.Int("candidates", len(table.order)))
	return desc, nil
}

// collectOwn 收集导出的非嵌入字段和 *T 方法集中的 getter 方法
func (c *Cache) collectOwn(t reflect.Type, table *memberSet) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous || !field.IsExported() {
			continue
		}
		table.add(newMember(field.Name, field.Type, core.KindField, c.access.Field(t, field)))
	}

	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		method := pt.Method(i)
		if !accessor.IsGetter(method) {
			continue
		}
		if _, exists := table.byName[method.Name]; exists {
			continue
		}
		fn, ok := c.access.Method(t, method.Name)
		if !ok {
			continue
		}
		table.add(newMember(method.Name, method.Type.Out(0), core.KindProperty, fn))
	}
}

// applyStatics 添加静态成员
func (c *Cache) applyStatics(t reflect.Type, table *memberSet, statics []StaticMember) error {
	for _, st := range statics {
		if _, exists := table.byName[st.Name]; exists {
			return errors.Wrapf(core.ErrMemberConflict, "static member %q on %s", st.Name, t)
		}

		m := newMember(st.Name, st.Type, core.KindProperty, c.access.Static(st.Get))
		m.static = true
		m.alwaysInclude = st.AlwaysInclude
		for _, rule := range st.Rules {
			if err := m.rules.Add(rule); err != nil {
				return errors.Wrapf(err, "%s.%s", t, st.Name)
			}
		}
		table.add(m)
	}
	return nil
}

// applyMemberRules 严格添加类型自身声明的成员规则
func (c *Cache) applyMemberRules(t reflect.Type, table *memberSet, members []MemberRules) error {
	for _, mr := range members {
		m, err := c.memberFor(t, table, mr)
		if err != nil {
			return err
		}
		if mr.AlwaysInclude {
			m.alwaysInclude = true
		}
		for _, rule := range mr.Rules {
			if err := m.rules.Add(rule); err != nil {
				return errors.Wrapf(err, "%s.%s", t, mr.Name)
			}
		}
	}
	return nil
}

// memberFor 解析规则来源中的成员名
// Accessor 与 Name 不同时创建别名成员
func (c *Cache) memberFor(t reflect.Type, table *memberSet, mr MemberRules) (*MemberDescriptor, error) {
	if m, ok := table.byName[mr.Name]; ok {
		return m, nil
	}

	source := mr.Accessor
	if source == "" || source == mr.Name {
		m, err := resolveReadable(c.access, t, mr.Name)
		if err != nil {
			return nil, err
		}
		if existing, ok := table.byName[m.name]; ok {
			return existing, nil
		}
		table.add(m)
		return m, nil
	}

	target, err := resolveReadable(c.access, t, source)
	if err != nil {
		return nil, err
	}
	alias := newMember(mr.Name, target.typ, target.kind, target.access)
	alias.source = target.name
	table.add(alias)
	return alias, nil
}

// applyInterfaces 把接口成员规则合并到实现成员
func (c *Cache) applyInterfaces(t reflect.Type, table *memberSet, bases []reflect.StructField) error {
	for _, iface := range c.source.Interfaces() {
		if iface == nil || iface.Kind() != reflect.Interface {
			continue
		}
		if !t.Implements(iface) && !reflect.PointerTo(t).Implements(iface) {
			continue
		}
		if c.claimedByBase(t, bases, iface) {
			// 基类型描述符已携带该接口的规则，合并基类型时会传播下来
			c.logger.Debug("interface claimed by base type",
				zap.Stringer("type", t), zap.Stringer("interface", iface))
			continue
		}

		rules, err := c.source.TypeRules(iface)
		if err != nil {
			return errors.Wrapf(err, "loading rules for %s", iface)
		}
		if rules == nil {
			continue
		}

		for _, mr := range rules.Members {
			ifaceMember, err := interfaceMember(iface, mr)
			if err != nil {
				return err
			}

			target := table.byName[iface.Name()+"."+mr.Name]
			if target == nil {
				target = table.byName[mr.Name]
			}
			if target == nil {
				target, err = resolveReadable(c.access, t, mr.Name)
				if err != nil {
					return err
				}
				table.add(target)
			}

			if mr.AlwaysInclude {
				target.alwaysInclude = true
			}
			if err := target.rules.Merge(ifaceMember.rules); err != nil {
				return errors.Wrapf(err, "%s.%s from %s", t, target.name, iface)
			}
		}
	}
	return nil
}

// interfaceMember 为接口成员构建临时描述符（接口本身不能拥有描述符）
func interfaceMember(iface reflect.Type, mr MemberRules) (*MemberDescriptor, error) {
	method, ok := iface.MethodByName(mr.Name)
	if !ok || method.Type.NumIn() != 0 || method.Type.NumOut() != 1 {
		return nil, errors.Wrapf(core.ErrMemberNotFound, "%s has no getter %q", iface, mr.Name)
	}

	m := newMember(mr.Name, method.Type.Out(0), core.KindProperty, nil)
	for _, rule := range mr.Rules {
		if err := m.rules.Add(rule); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", iface, mr.Name)
		}
	}
	return m, nil
}

// claimedByBase 允许反射的基类型是否也实现了该接口
func (c *Cache) claimedByBase(t reflect.Type, bases []reflect.StructField, iface reflect.Type) bool {
	for _, base := range bases {
		bt := indirect(base.Type)
		if !c.policy.Permits(t, bt) {
			continue
		}
		if bt.Implements(iface) || reflect.PointerTo(bt).Implements(iface) {
			return true
		}
	}
	return false
}

// applyBases 合并基类型（嵌入结构体）的成员规则
func (c *Cache) applyBases(t reflect.Type, table *memberSet, bases []reflect.StructField) error {
	for _, base := range bases {
		bt := indirect(base.Type)
		if !c.policy.Permits(t, bt) {
			c.logger.Debug("base type outside reflection boundary",
				zap.Stringer("type", t), zap.Stringer("base", bt))
			continue
		}
		if embeds(bt, t, make(map[reflect.Type]bool)) {
			return errors.Wrapf(core.ErrCircularEmbedding, "%s embeds %s", t, bt)
		}

		baseDesc, err := c.Type(bt)
		if err != nil {
			return errors.Wrapf(err, "base %s of %s", bt, t)
		}

		for _, bm := range baseDesc.Members() {
			if bm.static {
				continue
			}

			if local, ok := table.byName[bm.name]; ok {
				if bm.alwaysInclude {
					local.alwaysInclude = true
				}
				if err := local.rules.Merge(bm.rules); err != nil {
					return errors.Wrapf(err, "%s.%s from %s", t, bm.name, bt)
				}
				continue
			}

			clone := bm.cloneFor(c.cloneAccess(t, base, bm))
			if err := clone.rules.Merge(bm.rules); err != nil {
				return errors.Wrapf(err, "%s.%s from %s", t, bm.name, bt)
			}
			table.add(clone)
		}
	}
	return nil
}

// cloneAccess 为克隆成员构建访问器
// 字段成员按 t 上的完整索引路径读取，其他成员先读嵌入字段再读基类型成员
func (c *Cache) cloneAccess(t reflect.Type, embed reflect.StructField, bm *MemberDescriptor) accessor.Func {
	if bm.kind == core.KindField {
		if field, ok := t.FieldByName(bm.source); ok && len(field.Index) > 1 && field.Index[0] == embed.Index[0] {
			return c.access.Field(t, field)
		}
		// 菱形嵌入时字段在 t 上有歧义，按 嵌入字段 + 基类型内路径 读取
		if field, ok := indirect(embed.Type).FieldByName(bm.source); ok {
			index := append(append([]int(nil), embed.Index...), field.Index...)
			return c.access.FieldPath(t, index)
		}
	}

	outer := c.access.Field(t, embed)
	inner := bm.access
	return func(target any) (any, bool) {
		base, ok := outer(target)
		if !ok || inner == nil {
			return nil, false
		}
		return inner(base)
	}
}

// embeddedBases 嵌入的结构体字段（值或指针），按声明顺序
func embeddedBases(t reflect.Type) []reflect.StructField {
	var bases []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && indirect(field.Type).Kind() == reflect.Struct {
			bases = append(bases, field)
		}
	}
	return bases
}

// embeds 判断 from 的嵌入闭包中是否包含 target（指针嵌入可能成环）
func embeds(from, target reflect.Type, seen map[reflect.Type]bool) bool {
	if seen[from] {
		return false
	}
	seen[from] = true

	for _, field := range embeddedBases(from) {
		ft := indirect(field.Type)
		if ft == target || embeds(ft, target, seen) {
			return true
		}
	}
	return false
}
