package source

import (
	"reflect"

	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/descriptor"
)

// Chain 组合多个规则来源，按顺序拼接同一成员/参数的规则
type Chain []descriptor.RuleSource

// NewChain 创建组合来源，忽略 nil
func NewChain(sources ...descriptor.RuleSource) Chain {
	chain := make(Chain, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			chain = append(chain, s)
		}
	}
	return chain
}

// TypeRules 实现 descriptor.RuleSource 接口
func (c Chain) TypeRules(t reflect.Type) (*descriptor.TypeRules, error) {
	var out *descriptor.TypeRules
	index := make(map[string]int)

	for _, s := range c {
		rules, err := s.TypeRules(t)
		if err != nil {
			return nil, err
		}
		if rules == nil {
			continue
		}
		if out == nil {
			out = &descriptor.TypeRules{}
		}

		for _, m := range rules.Members {
			if i, ok := index[m.Name]; ok {
				existing := &out.Members[i]
				existing.Rules = append(existing.Rules, m.Rules...)
				existing.AlwaysInclude = existing.AlwaysInclude || m.AlwaysInclude
				if existing.Accessor == "" {
					existing.Accessor = m.Accessor
				}
				continue
			}
			m.Rules = append([]core.Rule(nil), m.Rules...)
			index[m.Name] = len(out.Members)
			out.Members = append(out.Members, m)
		}
		out.Statics = append(out.Statics, rules.Statics...)
	}
	return out, nil
}

// MethodRules 实现 descriptor.RuleSource 接口
func (c Chain) MethodRules(key descriptor.MethodKey) (*descriptor.MethodRules, error) {
	var out *descriptor.MethodRules
	for _, s := range c {
		rules, err := s.MethodRules(key)
		if err != nil {
			return nil, err
		}
		if rules == nil {
			continue
		}
		if out == nil {
			out = &descriptor.MethodRules{}
		}
		out.Params = append(out.Params, rules.Params...)
	}
	return out, nil
}

// Interfaces 实现 descriptor.RuleSource 接口
func (c Chain) Interfaces() []reflect.Type {
	var out []reflect.Type
	seen := make(map[reflect.Type]bool)
	for _, s := range c {
		for _, iface := range s.Interfaces() {
			if !seen[iface] {
				seen[iface] = true
				out = append(out, iface)
			}
		}
	}
	return out
}
