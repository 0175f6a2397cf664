package descriptor

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/core"
)

// memberSet 冻结后的成员快照，发布后不再修改
type memberSet struct {
	order    []*MemberDescriptor
	byName   map[string]*MemberDescriptor
	included map[string]*MemberDescriptor // AlwaysInclude 成员
}

func newMemberSet(capacity int) *memberSet {
	return &memberSet{
		order:    make([]*MemberDescriptor, 0, capacity),
		byName:   make(map[string]*MemberDescriptor, capacity),
		included: make(map[string]*MemberDescriptor),
	}
}

func (s *memberSet) add(m *MemberDescriptor) {
	s.order = append(s.order, m)
	s.byName[m.name] = m
	if m.alwaysInclude {
		s.included[m.name] = m
	}
}

// with 复制快照并追加成员（写时复制）
func (s *memberSet) with(m *MemberDescriptor) *memberSet {
	next := newMemberSet(len(s.order) + 1)
	for _, existing := range s.order {
		next.add(existing)
	}
	next.add(m)
	return next
}

// TypeDescriptor 类型描述符
// 每个类型在缓存生命周期内只存在一个实例；发布后只读，
// 结构变更只能通过 GetOrAddMember 扩展路径进行
type TypeDescriptor struct {
	typ     reflect.Type
	access  *accessor.Provider
	mu      sync.Mutex // 只保护扩展路径的写入
	members atomic.Pointer[memberSet]
}

// Type 描述的反射类型
func (d *TypeDescriptor) Type() reflect.Type {
	return d.typ
}

// Member 按名称查找成员
func (d *TypeDescriptor) Member(name string) (*MemberDescriptor, bool) {
	m, ok := d.members.Load().byName[name]
	return m, ok
}

// Members 所有成员（保持构建顺序）
func (d *TypeDescriptor) Members() []*MemberDescriptor {
	set := d.members.Load()
	out := make([]*MemberDescriptor, len(set.order))
	copy(out, set.order)
	return out
}

// InstanceMembers 非静态成员
func (d *TypeDescriptor) InstanceMembers() []*MemberDescriptor {
	return d.filter(func(m *MemberDescriptor) bool { return !m.static })
}

// StaticMembers 静态成员
func (d *TypeDescriptor) StaticMembers() []*MemberDescriptor {
	return d.filter(func(m *MemberDescriptor) bool { return m.static })
}

// AlwaysIncluded 标记为总是保留的成员
func (d *TypeDescriptor) AlwaysIncluded() []*MemberDescriptor {
	set := d.members.Load()
	out := make([]*MemberDescriptor, 0, len(set.included))
	for _, m := range set.order {
		if _, ok := set.included[m.name]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Len 成员数量
func (d *TypeDescriptor) Len() int {
	return len(d.members.Load().order)
}

// GetOrAddMember 扩展路径：获取成员，不存在时为可读的字段或 getter 方法创建空规则成员
// 写入在互斥锁内完成并以新快照发布，读者不会阻塞
func (d *TypeDescriptor) GetOrAddMember(name string) (*MemberDescriptor, error) {
	if m, ok := d.Member(name); ok {
		return m, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// 加锁后再检查一次
	set := d.members.Load()
	if m, ok := set.byName[name]; ok {
		return m, nil
	}

	m, err := resolveReadable(d.access, d.typ, name)
	if err != nil {
		return nil, err
	}
	if existing, ok := set.byName[m.name]; ok {
		// 通过 json tag 找到了已存在的字段
		return existing, nil
	}

	d.members.Store(set.with(m))
	return m, nil
}

func (d *TypeDescriptor) filter(keep func(*MemberDescriptor) bool) []*MemberDescriptor {
	set := d.members.Load()
	out := make([]*MemberDescriptor, 0, len(set.order))
	for _, m := range set.order {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// resolveReadable 按名称在类型上解析可读成员：字段（含提升字段、json tag）优先，其次 getter 方法
func resolveReadable(access *accessor.Provider, t reflect.Type, name string) (*MemberDescriptor, error) {
	if field, ok := accessor.LookupField(t, name); ok && field.IsExported() {
		return newMember(field.Name, field.Type, core.KindField, access.Field(t, field)), nil
	}
	if fn, ok := access.Method(t, name); ok {
		method, _ := reflect.PointerTo(t).MethodByName(name)
		return newMember(name, method.Type.Out(0), core.KindProperty, fn), nil
	}
	return nil, errors.Wrapf(core.ErrMemberNotFound, "%s has no readable member %q", t, name)
}
