package descriptor_test

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/descriptor"
	"katydid-common-validation/pkg/validation/rules"
	"katydid-common-validation/pkg/validation/source"
)

func memberNames(members []*descriptor.MemberDescriptor) []string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name()
	}
	return names
}

// ============================================================================
// 1. 缓存单例
// ============================================================================

// TestCache_Singleton 测试并发首次访问只构建一个描述符
func TestCache_Singleton(t *testing.T) {
	reg := source.NewRegistry()
	source.For[Person](reg).Member("Age", rules.NewRange(0, 150))
	cache := newCache(reg)

	const workers = 64
	results := make([]*descriptor.TypeDescriptor, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			// 值类型和指针类型是同一个标识
			var typ reflect.Type = personType
			if i%2 == 0 {
				typ = reflect.TypeOf((**Person)(nil)).Elem()
			}
			d, err := cache.Type(typ)
			results[i] = d
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
	types, _ := cache.Len()
	assert.Equal(t, 1, types)
}

// TestCache_Admin 测试缓存清理和移除
func TestCache_Admin(t *testing.T) {
	reg := source.NewRegistry()
	source.For[Person](reg).Member("Age", rules.NewRange(0, 150))
	cache := newCache(reg)

	first, err := cache.Type(personType)
	require.NoError(t, err)
	_, err = cache.Method(accountType, "Deposit")
	require.NoError(t, err)

	t.Run("移除后重新构建", func(t *testing.T) {
		cache.Remove(personType)
		second, err := cache.Type(personType)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		first = second
	})

	t.Run("移除类型同时移除其方法", func(t *testing.T) {
		cache.Remove(accountType)
		types, methods := cache.Len()
		assert.Equal(t, 1, types)
		assert.Equal(t, 0, methods)
	})

	t.Run("清空", func(t *testing.T) {
		cache.Clear()
		types, methods := cache.Len()
		assert.Zero(t, types)
		assert.Zero(t, methods)

		again, err := cache.Type(personType)
		require.NoError(t, err)
		assert.NotSame(t, first, again)
	})
}

// ============================================================================
// 2. 类型描述符构建
// ============================================================================

// TestCache_OwnMembers 测试自身成员的收集和保留
func TestCache_OwnMembers(t *testing.T) {
	reg := source.NewRegistry()
	source.For[Person](reg).
		Member("name", rules.NewRequired()).
		Member("Age", rules.NewRange(0, 150)).
		Member("DisplayName", rules.NewLength(1, 20)).
		AlwaysInclude("Email")
	cache := newCache(reg)

	d, err := cache.Type(personType)
	require.NoError(t, err)

	t.Run("只保留有规则或总是保留的成员", func(t *testing.T) {
		assert.Equal(t, []string{"Name", "Age", "Email", "DisplayName"}, memberNames(d.Members()))
		_, ok := d.Member("Score")
		assert.False(t, ok)
	})

	t.Run("json tag解析到字段", func(t *testing.T) {
		m, ok := d.Member("Name")
		require.True(t, ok)
		assert.Equal(t, core.KindField, m.Kind())
		assert.Equal(t, 1, m.Rules().Len())
	})

	t.Run("getter方法作为属性", func(t *testing.T) {
		m, ok := d.Member("DisplayName")
		require.True(t, ok)
		assert.Equal(t, core.KindProperty, m.Kind())
		v, ok := m.Value(Person{Name: "tom"})
		require.True(t, ok)
		assert.Equal(t, "tom!", v)
	})

	t.Run("总是保留的成员", func(t *testing.T) {
		assert.Equal(t, []string{"Email"}, memberNames(d.AlwaysIncluded()))
		m, _ := d.Member("Email")
		assert.Zero(t, m.Rules().Len())
	})

	t.Run("值类型与指针目标读取相同的值", func(t *testing.T) {
		m, _ := d.Member("Age")
		p := Person{Age: 42}
		byValue, ok := m.Value(p)
		require.True(t, ok)
		byPointer, ok := m.Value(&p)
		require.True(t, ok)
		assert.Equal(t, byValue, byPointer)
	})
}

// TestCache_Errors 测试构建期配置错误
func TestCache_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(reg *source.Registry)
		typ     reflect.Type
		wantErr error
	}{
		{
			name:    "接口类型",
			typ:     reflect.TypeOf((*fmt.Stringer)(nil)).Elem(),
			wantErr: core.ErrInterfaceType,
		},
		{
			name:    "非结构体",
			typ:     reflect.TypeOf((*int)(nil)).Elem(),
			wantErr: core.ErrNotStruct,
		},
		{
			name: "未知成员",
			setup: func(reg *source.Registry) {
				source.For[Person](reg).Member("Nope", rules.NewRequired())
			},
			typ:     personType,
			wantErr: core.ErrMemberNotFound,
		},
		{
			name: "未导出字段不可读",
			setup: func(reg *source.Registry) {
				source.For[Person](reg).Member("secret", rules.NewRequired())
			},
			typ:     personType,
			wantErr: core.ErrMemberNotFound,
		},
		{
			name: "重复规则",
			setup: func(reg *source.Registry) {
				source.For[Person](reg).Member("Age", rules.NewRange(0, 150), rules.NewRange(0, 150))
			},
			typ:     personType,
			wantErr: core.ErrDuplicateRule,
		},
		{
			name: "类型不兼容",
			setup: func(reg *source.Registry) {
				source.For[Person](reg).Member("Name", rules.NewRange(0, 150))
			},
			typ:     personType,
			wantErr: core.ErrIncompatibleType,
		},
		{
			name: "静态成员与实例成员同名",
			setup: func(reg *source.Registry) {
				source.For[Person](reg).Static("Name", reflect.TypeOf((*string)(nil)).Elem(), func() any { return "" })
			},
			typ:     personType,
			wantErr: core.ErrMemberConflict,
		},
		{
			name:    "指针嵌入成环",
			typ:     reflect.TypeOf((*Node)(nil)).Elem(),
			wantErr: core.ErrCircularEmbedding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := source.NewRegistry()
			if tt.setup != nil {
				tt.setup(reg)
			}
			cache := newCache(reg)

			d, err := cache.Type(tt.typ)
			assert.Nil(t, d)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			// 失败结果同样被缓存，不会重新构建
			_, again := cache.Type(tt.typ)
			assert.Equal(t, err, again)
		})
	}
}

// TestCache_Statics 测试静态成员
func TestCache_Statics(t *testing.T) {
	limit := 200
	reg := source.NewRegistry()
	source.For[Person](reg).
		Member("Age", rules.NewRange(0, 150)).
		Static("MaxAge", reflect.TypeOf((*int)(nil)).Elem(), func() any { return limit }, rules.NewRange(0, 150))
	cache := newCache(reg)

	d, err := cache.Type(personType)
	require.NoError(t, err)

	assert.Equal(t, []string{"MaxAge"}, memberNames(d.StaticMembers()))
	assert.Equal(t, []string{"Age"}, memberNames(d.InstanceMembers()))

	m, _ := d.Member("MaxAge")
	assert.True(t, m.Static())
	v, ok := m.Value(nil)
	require.True(t, ok)
	assert.Equal(t, 200, v)

	t.Run("静态成员不向派生类型传播", func(t *testing.T) {
		ed, err := cache.Type(employeeType)
		require.NoError(t, err)
		_, ok := ed.Member("MaxAge")
		assert.False(t, ok)
	})
}

// TestCache_GetOrAddMember 测试扩展路径
func TestCache_GetOrAddMember(t *testing.T) {
	reg := source.NewRegistry()
	source.For[Person](reg).Member("Age", rules.NewRange(0, 150))
	cache := newCache(reg)
	d, err := cache.Type(personType)
	require.NoError(t, err)

	t.Run("已存在的成员", func(t *testing.T) {
		existing, _ := d.Member("Age")
		m, err := d.GetOrAddMember("age")
		require.NoError(t, err)
		assert.Same(t, existing, m)
	})

	t.Run("新增成员后可见", func(t *testing.T) {
		before := d.Len()
		m, err := d.GetOrAddMember("Email")
		require.NoError(t, err)
		assert.Zero(t, m.Rules().Len())
		assert.Equal(t, before+1, d.Len())

		again, err := d.GetOrAddMember("Email")
		require.NoError(t, err)
		assert.Same(t, m, again)
	})

	t.Run("并发新增同一成员", func(t *testing.T) {
		const workers = 16
		results := make([]*descriptor.MemberDescriptor, workers)
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			i := i
			g.Go(func() error {
				m, err := d.GetOrAddMember("Score")
				results[i] = m
				return err
			})
		}
		require.NoError(t, g.Wait())
		for i := 1; i < workers; i++ {
			assert.Same(t, results[0], results[i])
		}
	})

	t.Run("不存在的成员", func(t *testing.T) {
		_, err := d.GetOrAddMember("Missing")
		assert.True(t, errors.Is(err, core.ErrMemberNotFound))
	})
}

// ============================================================================
// 3. 接口与基类型
// ============================================================================

// TestCache_Interfaces 测试接口成员规则合并
func TestCache_Interfaces(t *testing.T) {
	reg := source.NewRegistry()
	required := rules.NewRequired()
	source.For[Named](reg).Member("GetName", required)
	source.For[Widget](reg).Alias("Named.GetName", "GetName")
	cache := newCache(reg)

	t.Run("简单名匹配", func(t *testing.T) {
		d, err := cache.Type(personType)
		require.NoError(t, err)
		m, ok := d.Member("GetName")
		require.True(t, ok)
		assert.True(t, m.Rules().Contains(required))
	})

	t.Run("限定名优先", func(t *testing.T) {
		d, err := cache.Type(reflect.TypeOf((*Widget)(nil)).Elem())
		require.NoError(t, err)

		m, ok := d.Member("Named.GetName")
		require.True(t, ok)
		assert.Equal(t, "GetName", m.SourceName())
		assert.True(t, m.Rules().Contains(required))
		assert.Equal(t, "The property Get Name is required.", m.Rules().Entries()[0].Message())

		_, ok = d.Member("GetName")
		assert.False(t, ok)

		v, ok := m.Value(Widget{label: "w"})
		require.True(t, ok)
		assert.Equal(t, "w", v)
	})

	t.Run("基类型已实现的接口不重复传播", func(t *testing.T) {
		d, err := cache.Type(employeeType)
		require.NoError(t, err)
		m, ok := d.Member("GetName")
		require.True(t, ok)
		assert.Equal(t, 1, m.Rules().Len())
	})
}

// TestCache_Bases 测试嵌入基类型的规则传播
func TestCache_Bases(t *testing.T) {
	reg := source.NewRegistry()
	ageRange := rules.NewRange(0, 150)
	source.For[Person](reg).
		Member("Age", ageRange).
		Member("Name", rules.NewRequired())
	source.For[Employee](reg).Member("Title", rules.NewRequired())
	source.For[Student](reg).Member("Age", rules.NewRange(0, 150), rules.NewRange(6, 30))
	cache := newCache(reg)

	t.Run("克隆基类型成员", func(t *testing.T) {
		d, err := cache.Type(employeeType)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Title", "Age", "Name"}, memberNames(d.Members()))

		age, _ := d.Member("Age")
		assert.True(t, age.Rules().Contains(ageRange))

		base, _ := mustType(t, cache, personType).Member("Age")
		assert.NotSame(t, base, age)

		v, ok := age.Value(&Employee{Person: Person{Age: 30}})
		require.True(t, ok)
		assert.Equal(t, 30, v)
	})

	t.Run("同名成员合并并去重", func(t *testing.T) {
		d, err := cache.Type(reflect.TypeOf((*Student)(nil)).Elem())
		require.NoError(t, err)
		age, _ := d.Member("Age")
		// 自身两条 + 基类型一条等价规则被跳过
		assert.Equal(t, 2, age.Rules().Len())

		v, ok := age.Value(Student{Person: Person{Age: 99}, Age: 12})
		require.True(t, ok)
		assert.Equal(t, 12, v)
	})

	t.Run("指针嵌入为nil时不可读", func(t *testing.T) {
		d, err := cache.Type(reflect.TypeOf((*Contractor)(nil)).Elem())
		require.NoError(t, err)
		age, ok := d.Member("Age")
		require.True(t, ok)

		_, ok = age.Value(Contractor{})
		assert.False(t, ok)

		v, ok := age.Value(Contractor{Person: &Person{Age: 7}})
		require.True(t, ok)
		assert.Equal(t, 7, v)
	})
}

type DiamondRoot struct {
	X int
}

type DiamondLeft struct {
	DiamondRoot
}

type DiamondRight struct {
	DiamondRoot
}

// Diamond 经左右两条路径嵌入同一个基类型，X 在 Diamond 上有歧义
type Diamond struct {
	DiamondLeft
	DiamondRight
}

type hiddenRoot struct {
	X int
}

type hiddenLeft struct {
	hiddenRoot
}

type hiddenRight struct {
	hiddenRoot
}

type hiddenDiamond struct {
	hiddenLeft
	hiddenRight
}

// TestCache_Diamond 测试菱形嵌入：多条路径传播的同一规则只保留一份
func TestCache_Diamond(t *testing.T) {
	reg := source.NewRegistry()
	xRange := rules.NewRange(1, 5)
	source.For[DiamondRoot](reg).Member("X", xRange)
	source.For[hiddenRoot](reg).Member("X", xRange)
	cache := newCache(reg)

	t.Run("导出类型", func(t *testing.T) {
		d := mustType(t, cache, reflect.TypeOf((*Diamond)(nil)).Elem())
		assert.Equal(t, []string{"X"}, memberNames(d.Members()))

		x, _ := d.Member("X")
		require.Equal(t, 1, x.Rules().Len())
		assert.True(t, x.Rules().Contains(xRange))

		v, ok := x.Value(&Diamond{DiamondLeft: DiamondLeft{DiamondRoot{X: 7}}})
		require.True(t, ok)
		assert.Equal(t, 7, v)
	})

	t.Run("未导出的嵌入类型", func(t *testing.T) {
		d := mustType(t, cache, reflect.TypeOf((*hiddenDiamond)(nil)).Elem())
		x, ok := d.Member("X")
		require.True(t, ok)
		assert.Equal(t, 1, x.Rules().Len())

		v, ok := x.Value(hiddenDiamond{hiddenLeft: hiddenLeft{hiddenRoot{X: 7}}})
		require.True(t, ok)
		assert.Equal(t, 7, v)
	})
}

// TestCache_ReflectionPolicy 测试跨包反射边界
func TestCache_ReflectionPolicy(t *testing.T) {
	newRegistry := func() *source.Registry {
		reg := source.NewRegistry()
		source.For[time.Time](reg).Member("Year", rules.NewRange(2000, 2100))
		source.For[Event](reg).Member("Title", rules.NewRequired())
		return reg
	}
	event := Event{Time: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), Title: "launch"}

	t.Run("未标记的包不传播", func(t *testing.T) {
		cache := newCache(newRegistry())
		d, err := cache.Type(reflect.TypeOf((*Event)(nil)).Elem())
		require.NoError(t, err)
		_, ok := d.Member("Year")
		assert.False(t, ok)
	})

	t.Run("标记为可反射后传播", func(t *testing.T) {
		policy := descriptor.NewReflectionPolicy()
		policy.MarkReflectable("time")
		cache := newCache(newRegistry(), descriptor.WithPolicy(policy))

		d, err := cache.Type(reflect.TypeOf((*Event)(nil)).Elem())
		require.NoError(t, err)
		year, ok := d.Member("Year")
		require.True(t, ok)
		assert.Equal(t, 1, year.Rules().Len())

		v, ok := year.Value(event)
		require.True(t, ok)
		assert.Equal(t, 1999, v)
	})

	t.Run("策略判断", func(t *testing.T) {
		policy := descriptor.NewReflectionPolicy("time")
		assert.True(t, policy.Permits(employeeType, personType))
		assert.True(t, policy.Permits(reflect.TypeOf((*Event)(nil)).Elem(), reflect.TypeOf((*time.Time)(nil)).Elem()))
		assert.False(t, policy.Permits(personType, reflect.TypeOf((*errgroup.Group)(nil)).Elem()))
		assert.Equal(t, []string{"time"}, policy.Packages())
	})
}

func mustType(t *testing.T, cache *descriptor.Cache, typ reflect.Type) *descriptor.TypeDescriptor {
	t.Helper()
	d, err := cache.Type(typ)
	require.NoError(t, err)
	return d
}
