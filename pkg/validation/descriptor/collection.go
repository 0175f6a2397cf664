package descriptor

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"

	"katydid-common-validation/pkg/validation/core"
)

// RuleEntry 绑定到某个成员规则集合中的规则
// 规则本身不可变，集合中解析出的默认消息保存在条目上
type RuleEntry struct {
	rule    core.Rule
	message string
	ruleSet string // 规范化后的规则集键
	member  *MemberDescriptor
}

// Rule 规则实例
func (e *RuleEntry) Rule() core.Rule {
	return e.rule
}

// Message 解析后的消息（规则交给外部消息提供者时为空）
func (e *RuleEntry) Message() string {
	return e.message
}

// RuleSet 规范化后的规则集键，全局分区为空字符串
func (e *RuleEntry) RuleSet() string {
	return e.ruleSet
}

// Member 所属成员
func (e *RuleEntry) Member() *MemberDescriptor {
	return e.member
}

// Evaluate 执行规则，失败时返回 ValidationError
func (e *RuleEntry) Evaluate(ctx context.Context, provider core.MessageProvider, target, value any) *core.ValidationError {
	return core.Evaluate(ctx, e.rule, e.message, provider, target, value, e.member)
}

// RuleCollection 成员的规则集合
// 职责：
//   - 维护插入顺序的规则列表
//   - 维护按规则集分区的索引（全局分区键为空字符串，其余为大写键）
//   - 执行重复规则抑制和类型兼容性检查
//
// 非线程安全：发布到缓存后只读，并发 Add/Remove 不在契约范围内
type RuleCollection struct {
	member     *MemberDescriptor
	entries    []*RuleEntry
	partitions map[string][]*RuleEntry
}

// newRuleCollection 创建属于 member 的规则集合
func newRuleCollection(member *MemberDescriptor) *RuleCollection {
	return &RuleCollection{
		member:     member,
		partitions: make(map[string][]*RuleEntry),
	}
}

// Add 严格添加规则
// 同一分区内存在同类型且等价（或同一实例）的规则时返回 ErrDuplicateRule，
// 规则适用类型与成员类型不兼容时返回 ErrIncompatibleType
func (c *RuleCollection) Add(rule core.Rule) error {
	if rule == nil {
		return errors.Wrap(core.ErrInvalidRuleArgs, "nil rule")
	}

	key := core.NormalizeRuleSet(rule.Options().RuleSet)
	if c.hasDuplicate(key, rule) {
		return errors.Wrapf(core.ErrDuplicateRule, "%T on %s %q (rule set %q)",
			rule, c.member.kind.Label(), c.member.name, key)
	}
	if err := c.checkType(rule); err != nil {
		return err
	}

	c.append(rule, c.defaultMessage(rule), key)
	return nil
}

// Merge 合并其他集合中的规则
// 用于把基类型/接口上的规则向下传播：重复规则静默跳过，可在多条继承路径上重复调用
func (c *RuleCollection) Merge(other *RuleCollection) error {
	if other == nil || other == c {
		return nil
	}

	for _, entry := range other.entries {
		if c.hasDuplicate(entry.ruleSet, entry.rule) {
			continue
		}
		if err := c.checkType(entry.rule); err != nil {
			return err
		}

		message := entry.message
		if message == "" {
			message = c.defaultMessage(entry.rule)
		}
		c.append(entry.rule, message, entry.ruleSet)
	}
	return nil
}

// Remove 移除规则，返回是否找到
func (c *RuleCollection) Remove(rule core.Rule) bool {
	idx := c.indexOf(rule)
	if idx < 0 {
		return false
	}

	entry := c.entries[idx]
	c.entries = append(c.entries[:idx:idx], c.entries[idx+1:]...)

	// 通过条目上记录的分区键反查分区
	partition := c.partitions[entry.ruleSet]
	for i, e := range partition {
		if e == entry {
			partition = append(partition[:i:i], partition[i+1:]...)
			break
		}
	}
	if len(partition) == 0 {
		delete(c.partitions, entry.ruleSet)
	} else {
		c.partitions[entry.ruleSet] = partition
	}
	return true
}

// RulesForRuleSet 获取某个规则集分区的规则
// 空字符串返回全局分区；非空键（大小写不敏感）只返回该分区，分区之间互不合并
func (c *RuleCollection) RulesForRuleSet(ruleSet string) []*RuleEntry {
	partition := c.partitions[core.NormalizeRuleSet(ruleSet)]
	if len(partition) == 0 {
		return nil
	}
	out := make([]*RuleEntry, len(partition))
	copy(out, partition)
	return out
}

// Entries 按插入顺序返回所有条目
func (c *RuleCollection) Entries() []*RuleEntry {
	out := make([]*RuleEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Rules 按插入顺序返回所有规则
func (c *RuleCollection) Rules() []core.Rule {
	rules := make([]core.Rule, 0, len(c.entries))
	for _, e := range c.entries {
		rules = append(rules, e.rule)
	}
	return rules
}

// RuleSets 返回出现过的规则集键
func (c *RuleCollection) RuleSets() []string {
	keys := make([]string, 0, len(c.partitions))
	seen := make(map[string]bool, len(c.partitions))
	for _, e := range c.entries {
		if !seen[e.ruleSet] {
			seen[e.ruleSet] = true
			keys = append(keys, e.ruleSet)
		}
	}
	return keys
}

// Len 规则数量
func (c *RuleCollection) Len() int {
	return len(c.entries)
}

// Contains 是否包含某个规则实例
func (c *RuleCollection) Contains(rule core.Rule) bool {
	return c.indexOf(rule) >= 0
}

// hasDuplicate 检查分区内是否已有同类型等价规则或同一实例
func (c *RuleCollection) hasDuplicate(key string, rule core.Rule) bool {
	for _, e := range c.partitions[key] {
		if !core.SameKind(e.rule, rule) {
			continue
		}
		if core.SameInstance(e.rule, rule) || e.rule.IsEquivalent(rule) {
			return true
		}
	}
	return false
}

// checkType 检查规则适用类型与成员值类型是否兼容
func (c *RuleCollection) checkType(rule core.Rule) error {
	applies := rule.Options().AppliesTo
	if Compatible(applies, c.member.typ) {
		return nil
	}
	return errors.Wrapf(core.ErrIncompatibleType, "%T declared for %s, %s %q is %s",
		rule, applies, c.member.kind.Label(), c.member.name, c.member.typ)
}

// defaultMessage 规则未配置消息且不依赖外部提供者时计算默认消息
func (c *RuleCollection) defaultMessage(rule core.Rule) string {
	opts := rule.Options()
	if opts.Message != "" {
		return opts.Message
	}
	if opts.UseMessageProvider {
		return ""
	}
	return rule.DefaultMessage(core.HumanizeName(c.member.name), c.member.kind)
}

func (c *RuleCollection) append(rule core.Rule, message, key string) {
	entry := &RuleEntry{
		rule:    rule,
		message: message,
		ruleSet: key,
		member:  c.member,
	}
	c.entries = append(c.entries, entry)
	c.partitions[key] = append(c.partitions[key], entry)
}

func (c *RuleCollection) indexOf(rule core.Rule) int {
	for i, e := range c.entries {
		if core.SameInstance(e.rule, rule) {
			return i
		}
	}
	return -1
}

// Compatible 判断规则适用类型 applies 是否可用于值类型为 member 的成员
// nil 表示任意类型；可空成员（指向非结构体值类型的指针）兼容其底层类型的规则
func Compatible(applies, member reflect.Type) bool {
	if applies == nil || member == nil {
		return true
	}
	if member == applies || member.AssignableTo(applies) {
		return true
	}
	if IsNullable(member) {
		elem := member.Elem()
		return elem == applies || elem.AssignableTo(applies)
	}
	return false
}

// IsNullable 判断类型是否为可空值类型（指向非结构体值类型的指针）
func IsNullable(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Pointer {
		return false
	}
	switch t.Elem().Kind() {
	case reflect.Struct, reflect.Interface, reflect.Pointer, reflect.Func, reflect.Chan,
		reflect.Map, reflect.Slice, reflect.UnsafePointer:
		return false
	}
	return true
}
