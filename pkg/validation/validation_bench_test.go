package validation_test

import (
	"context"
	"testing"

	"katydid-common-validation/pkg/validation"
	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/rules"
	"katydid-common-validation/pkg/validation/source"
)

// BenchmarkUser 测试用的用户结构
type BenchmarkUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

func benchmarkEngine(b *testing.B) *validation.Engine {
	b.Helper()
	e := validation.New()
	email, err := rules.NewTag("email")
	if err != nil {
		b.Fatal(err)
	}
	source.For[BenchmarkUser](e.Registry()).
		Member("Username", rules.NewRequired(), rules.NewLength(3, 20)).
		Member("Email", rules.NewRequired(), email).
		Member("Password", rules.NewLength(6, -1, core.WithRuleSet("create"))).
		Member("Age", rules.NewRange(0, 150))
	return e
}

// BenchmarkValidate_TypeCaching 测试描述符缓存命中后的验证性能
func BenchmarkValidate_TypeCaching(b *testing.B) {
	e := benchmarkEngine(b)
	user := &BenchmarkUser{Username: "testuser", Email: "test@example.com", Password: "password123", Age: 25}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Validate(ctx, user, "")
	}
}

// BenchmarkManager_Incremental 测试单成员重新验证的性能
func BenchmarkManager_Incremental(b *testing.B) {
	e := benchmarkEngine(b)
	user := &BenchmarkUser{Username: "testuser", Email: "test@example.com", Password: "password123", Age: 25}
	m, err := e.For(user, "")
	if err != nil {
		b.Fatal(err)
	}
	m.ValidateAll()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user.Age = i % 200
		m.Validate("Age")
	}
}

// BenchmarkCache_Cold 测试每次清空缓存后重新构建描述符的开销
func BenchmarkCache_Cold(b *testing.B) {
	e := benchmarkEngine(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Clear()
		if _, err := e.Describe(&BenchmarkUser{}); err != nil {
			b.Fatal(err)
		}
	}
}
