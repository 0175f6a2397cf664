package binding

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"katydid-common-validation/pkg/validation"
	"katydid-common-validation/pkg/validation/core"
)

// 错误码
const (
	CodeBadRequest      = "bad_request"
	CodeValidationError = "validation_error"
	CodeInternalError   = "internal_error"
)

// ErrorDetail 错误响应体
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// Response 错误响应
type Response struct {
	Error *ErrorDetail `json:"error"`
}

// Details 按成员名分组的错误消息
func Details(errs core.ValidationErrors) map[string][]string {
	if len(errs) == 0 {
		return nil
	}
	details := make(map[string][]string)
	for _, e := range errs {
		name := e.MemberName()
		details[name] = append(details[name], e.Message())
	}
	return details
}

// BindJSON 绑定请求 JSON 并用引擎验证
// 绑定失败返回 400，验证失败返回 422，规则定义错误返回 500；成功时返回 true
func BindJSON(c *gin.Context, engine *validation.Engine, target any, ruleSet string) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		Abort(c, http.StatusBadRequest, &ErrorDetail{Code: CodeBadRequest, Message: err.Error()})
		return false
	}

	if err := engine.Validate(c.Request.Context(), target, ruleSet); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}

// AbortWithError 按错误类型写入错误响应并终止后续处理
func AbortWithError(c *gin.Context, err error) {
	var verrs core.ValidationErrors
	if errors.As(err, &verrs) {
		Abort(c, http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    CodeValidationError,
			Message: "validation failed",
			Details: Details(verrs),
		})
		return
	}

	var guard *core.GuardError
	if errors.As(err, &guard) {
		Abort(c, http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    CodeValidationError,
			Message: guard.Message,
			Details: map[string][]string{guard.Member: {guard.Message}},
		})
		return
	}

	Abort(c, http.StatusInternalServerError, &ErrorDetail{Code: CodeInternalError, Message: err.Error()})
}

// Abort 写入错误响应并终止
func Abort(c *gin.Context, status int, detail *ErrorDetail) {
	c.AbortWithStatusJSON(status, Response{Error: detail})
}

// Handler 生成处理函数：绑定并验证 T 后调用 handle
func Handler[T any](engine *validation.Engine, ruleSet string, handle func(c *gin.Context, req *T)) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := new(T)
		if !BindJSON(c, engine, req, ruleSet) {
			return
		}
		handle(c, req)
	}
}
