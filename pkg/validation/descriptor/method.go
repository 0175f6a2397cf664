package descriptor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/core"
)

// MethodDescriptor 方法描述符
// 按位置保存参数描述符；构建后只读
type MethodDescriptor struct {
	key      MethodKey
	static   bool
	variadic bool
	params   []*MemberDescriptor
	byName   map[string]*MemberDescriptor
}

// Key 方法标识
func (d *MethodDescriptor) Key() MethodKey {
	return d.key
}

// Name 方法名（普通函数为运行时全名）
func (d *MethodDescriptor) Name() string {
	return d.key.Name
}

// Static 是否为普通函数
func (d *MethodDescriptor) Static() bool {
	return d.static
}

// Variadic 最后一个参数是否为可变参数
func (d *MethodDescriptor) Variadic() bool {
	return d.variadic
}

// Params 参数描述符（按位置）
func (d *MethodDescriptor) Params() []*MemberDescriptor {
	out := make([]*MemberDescriptor, len(d.params))
	copy(out, d.params)
	return out
}

// Param 按名称查找参数
func (d *MethodDescriptor) Param(name string) (*MemberDescriptor, bool) {
	p, ok := d.byName[name]
	return p, ok
}

// ParamAt 按位置获取参数
func (d *MethodDescriptor) ParamAt(position int) (*MemberDescriptor, bool) {
	if position < 0 || position >= len(d.params) {
		return nil, false
	}
	return d.params[position], true
}

// NumParams 参数个数（不含接收者）
func (d *MethodDescriptor) NumParams() int {
	return len(d.params)
}

// buildMethod 构建方法描述符
// 参数规则来源依次为：方法自身、已实现接口上的同名方法、最近的可反射基类型上的同名方法
func (c *Cache) buildMethod(key MethodKey) (*MethodDescriptor, error) {
	recv := key.Receiver
	if recv.Kind() == reflect.Interface {
		return nil, errors.Wrapf(core.ErrInterfaceType, "method %s", key)
	}

	method, ok := reflect.PointerTo(recv).MethodByName(key.Name)
	if !ok {
		return nil, errors.Wrapf(core.ErrMethodNotFound, "%s", key)
	}
	if isAccessorMethod(recv, method) {
		return nil, errors.Wrapf(core.ErrAccessorMethod, "%s", key)
	}

	in := paramTypes(method.Type, 1)
	rules, err := c.source.MethodRules(key)
	if err != nil {
		return nil, errors.Wrapf(err, "loading rules for %s", key)
	}
	desc, err := newMethodDescriptor(key, in, method.Type.IsVariadic(), rules)
	if err != nil {
		return nil, err
	}

	if err := c.mergeInterfaceMethods(recv, desc, in); err != nil {
		return nil, err
	}
	if err := c.mergeBaseMethod(recv, desc, in); err != nil {
		return nil, err
	}

	c.logger.Debug("method descriptor built",
		zap.Stringer("method", key), zap.Int("params", len(desc.params)))
	return desc, nil
}

// buildFunc 构建普通函数描述符
func (c *Cache) buildFunc(key MethodKey, fnType reflect.Type) (*MethodDescriptor, error) {
	rules, err := c.source.MethodRules(key)
	if err != nil {
		return nil, errors.Wrapf(err, "loading rules for %s", key)
	}
	desc, err := newMethodDescriptor(key, paramTypes(fnType, 0), fnType.IsVariadic(), rules)
	if err != nil {
		return nil, err
	}
	desc.static = true

	c.logger.Debug("function descriptor built",
		zap.Stringer("func", key), zap.Int("params", len(desc.params)))
	return desc, nil
}

// newMethodDescriptor 按参数类型创建参数描述符并严格添加规则
func newMethodDescriptor(key MethodKey, in []reflect.Type, variadic bool, rules *MethodRules) (*MethodDescriptor, error) {
	var declared []ParamRules
	if rules != nil {
		declared = rules.Params
	}

	names := make([]string, len(in))
	for _, pr := range declared {
		if pr.Out {
			return nil, errors.Wrapf(core.ErrOutParameter, "%s parameter %d", key, pr.Position)
		}
		if pr.Position < 0 || pr.Position >= len(in) {
			return nil, errors.Wrapf(core.ErrMemberNotFound, "%s has no parameter at position %d", key, pr.Position)
		}
		if names[pr.Position] == "" && pr.Name != "" {
			names[pr.Position] = pr.Name
		}
	}

	desc := &MethodDescriptor{
		key:      key,
		variadic: variadic,
		params:   make([]*MemberDescriptor, len(in)),
		byName:   make(map[string]*MemberDescriptor, len(in)),
	}
	for i, typ := range in {
		name := names[i]
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		p := newParameter(name, typ, i)
		desc.params[i] = p
		desc.byName[name] = p
	}

	for _, pr := range declared {
		p := desc.params[pr.Position]
		for _, rule := range pr.Rules {
			if err := p.rules.Add(rule); err != nil {
				return nil, errors.Wrapf(err, "%s parameter %q", key, p.name)
			}
		}
	}
	return desc, nil
}

// mergeInterfaceMethods 合并已实现接口上同名方法的参数规则
func (c *Cache) mergeInterfaceMethods(recv reflect.Type, desc *MethodDescriptor, in []reflect.Type) error {
	for _, iface := range c.source.Interfaces() {
		if iface == nil || iface.Kind() != reflect.Interface {
			continue
		}
		if !recv.Implements(iface) && !reflect.PointerTo(recv).Implements(iface) {
			continue
		}
		if _, ok := iface.MethodByName(desc.key.Name); !ok {
			continue
		}

		ifaceKey := MethodKey{Receiver: iface, Name: desc.key.Name}
		rules, err := c.source.MethodRules(ifaceKey)
		if err != nil {
			return errors.Wrapf(err, "loading rules for %s", ifaceKey)
		}
		if rules == nil {
			continue
		}

		transient, err := newMethodDescriptor(ifaceKey, in, desc.variadic, rules)
		if err != nil {
			return err
		}
		if err := desc.mergeParams(transient); err != nil {
			return errors.Wrapf(err, "%s from %s", desc.key, iface)
		}
	}
	return nil
}

// mergeBaseMethod 合并最近的可反射基类型上同签名方法的参数规则（广度优先）
func (c *Cache) mergeBaseMethod(recv reflect.Type, desc *MethodDescriptor, in []reflect.Type) error {
	if recv.Kind() != reflect.Struct {
		return nil
	}

	seen := map[reflect.Type]bool{recv: true}
	queue := []reflect.Type{recv}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, field := range embeddedBases(current) {
			bt := indirect(field.Type)
			if seen[bt] {
				continue
			}
			seen[bt] = true
			if !c.policy.Permits(current, bt) {
				continue
			}

			method, ok := reflect.PointerTo(bt).MethodByName(desc.key.Name)
			if !ok {
				continue
			}
			if !sameTypes(paramTypes(method.Type, 1), in) {
				queue = append(queue, bt)
				continue
			}
			if embeds(bt, recv, make(map[reflect.Type]bool)) {
				return errors.Wrapf(core.ErrCircularEmbedding, "%s embeds %s", recv, bt)
			}

			base, err := c.Method(bt, desc.key.Name)
			if err != nil {
				return errors.Wrapf(err, "base method of %s", desc.key)
			}
			return desc.mergeParams(base)
		}
	}
	return nil
}

// mergeParams 按位置合并其他描述符的参数规则
func (d *MethodDescriptor) mergeParams(other *MethodDescriptor) error {
	for i, p := range other.params {
		if i >= len(d.params) {
			break
		}
		if err := d.params[i].rules.Merge(p.rules); err != nil {
			return err
		}
	}
	return nil
}

// isAccessorMethod 判断方法是否为属性访问方法
// getter 形态的方法和 SetX(v)（X 为可读成员）视为访问方法；索引器 Item / SetItem 除外
func isAccessorMethod(recv reflect.Type, method reflect.Method) bool {
	if method.Name == "Item" || method.Name == "SetItem" {
		return false
	}
	if accessor.IsGetter(method) {
		return true
	}

	name, ok := strings.CutPrefix(method.Name, "Set")
	if !ok || name == "" || method.Type.NumIn() != 2 || method.Type.NumOut() != 0 {
		return false
	}
	if recv.Kind() == reflect.Struct {
		if field, ok := recv.FieldByName(name); ok && field.IsExported() {
			return true
		}
	}
	getter, ok := reflect.PointerTo(recv).MethodByName(name)
	return ok && accessor.IsGetter(getter)
}

// paramTypes 从第 skip 个入参开始的参数类型
func paramTypes(fnType reflect.Type, skip int) []reflect.Type {
	n := fnType.NumIn() - skip
	if n <= 0 {
		return nil
	}
	out := make([]reflect.Type, n)
	for i := range out {
		out[i] = fnType.In(i + skip)
	}
	return out
}

func sameTypes(a, b []reflect.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
