package core

import "github.com/cockroachdb/errors"

// 定义期配置错误：全部在描述符构建阶段立即返回，不会延迟到验证阶段
var (
	// ErrDuplicateRule 同一分区内存在同类型且等价的规则
	ErrDuplicateRule = errors.New("duplicate rule in rule set")

	// ErrIncompatibleType 规则声明的适用类型与成员类型不兼容
	ErrIncompatibleType = errors.New("rule is not applicable to member type")

	// ErrInterfaceType 不能为接口类型构建描述符
	ErrInterfaceType = errors.New("cannot describe an interface type")

	// ErrNotStruct 只能为结构体类型构建描述符
	ErrNotStruct = errors.New("type descriptor requires a struct type")

	// ErrOutParameter 输出参数不能携带验证规则
	ErrOutParameter = errors.New("cannot describe an output-only parameter")

	// ErrAccessorMethod 不能为属性访问方法构建方法描述符
	ErrAccessorMethod = errors.New("cannot describe a property accessor method")

	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = errors.New("method not found")

	// ErrMemberNotFound 成员不存在或不可读
	ErrMemberNotFound = errors.New("member not found")

	// ErrMemberConflict 静态成员与实例成员同名
	ErrMemberConflict = errors.New("member name conflict")

	// ErrCircularEmbedding 指针嵌入形成环
	ErrCircularEmbedding = errors.New("circular struct embedding")

	// ErrUnknownRule 规则工厂中没有对应名称的规则
	ErrUnknownRule = errors.New("unknown rule")

	// ErrInvalidRuleArgs 规则参数无效
	ErrInvalidRuleArgs = errors.New("invalid rule arguments")

	// ErrArgumentCount 调用验证时实参个数与方法参数个数不一致
	ErrArgumentCount = errors.New("argument count mismatch")
)

// ErrValidationFailed 验证未通过，ValidationErrors 与 GuardError 均可用 errors.Is 匹配
var ErrValidationFailed = errors.New("validation failed")
