package descriptor_test

import (
	"reflect"
	"time"

	"katydid-common-validation/pkg/validation/accessor"
	"katydid-common-validation/pkg/validation/descriptor"
	"katydid-common-validation/pkg/validation/source"
)

// ============================================================================
// 测试模型
// ============================================================================

type Named interface {
	GetName() string
}

type Person struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Score  *int
	Email  string
	secret string
}

func (p Person) GetName() string     { return p.Name }
func (p Person) DisplayName() string { return p.Name + "!" }

type Employee struct {
	Person
	Title string
}

type Contractor struct {
	*Person
	Agency string
}

type Student struct {
	Person
	Age int
}

type Widget struct {
	label string
}

func (w Widget) GetName() string { return w.label }

type Event struct {
	time.Time
	Title string
}

type Node struct {
	*Link
	ID int
}

type Link struct {
	*Node
}

type Depositor interface {
	Deposit(amount int, note string) error
}

type Account struct {
	Balance int
	Owner   string
}

func (a *Account) Deposit(amount int, note string) error { a.Balance += amount; return nil }
func (a *Account) Transfer(to string, amount int, out *int) error {
	*out = a.Balance - amount
	return nil
}
func (a *Account) SetOwner(v string)         { a.Owner = v }
func (a Account) Summary() string            { return a.Owner }
func (a Account) Item(key string) int        { return len(key) }
func (a *Account) SetItem(key string, v int) {}
func (a *Account) Withdraw(amount int) error { a.Balance -= amount; return nil }

type Savings struct {
	Account
	Rate float64
}

func Greet(name string, times int) string { return name }

var (
	personType   = reflect.TypeOf((*Person)(nil)).Elem()
	employeeType = reflect.TypeOf((*Employee)(nil)).Elem()
	accountType  = reflect.TypeOf((*Account)(nil)).Elem()
)

// newCache 每个测试使用独立的注册表、访问器和缓存
func newCache(reg *source.Registry, opts ...descriptor.Option) *descriptor.Cache {
	base := []descriptor.Option{
		descriptor.WithSource(reg),
		descriptor.WithAccessorProvider(accessor.NewProvider()),
	}
	return descriptor.NewCache(append(base, opts...)...)
}

func intPtr(v int) *int {
	return &v
}
