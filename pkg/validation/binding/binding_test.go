package binding_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katydid-common-validation/pkg/validation"
	"katydid-common-validation/pkg/validation/binding"
	"katydid-common-validation/pkg/validation/core"
	"katydid-common-validation/pkg/validation/rules"
	"katydid-common-validation/pkg/validation/source"
)

type SignupRequest struct {
	Email string `json:"email"`
	Age   int    `json:"age"`
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := validation.New()
	email, err := rules.NewTag("email")
	require.NoError(t, err)
	source.For[SignupRequest](e.Registry()).
		Member("Email", rules.NewRequired(), email).
		Member("Age", rules.NewRange(18, 120, core.WithMessage("too young")))

	r := gin.New()
	r.POST("/signup", binding.Handler(e, "", func(c *gin.Context, req *SignupRequest) {
		c.JSON(http.StatusOK, gin.H{"email": req.Email})
	}))
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) binding.Response {
	t.Helper()
	var resp binding.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp
}

// TestBindJSON 测试请求绑定和验证
func TestBindJSON(t *testing.T) {
	r := newRouter(t)

	t.Run("通过", func(t *testing.T) {
		w := post(r, `{"email":"a@b.com","age":20}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"email":"a@b.com"}`, w.Body.String())
	})

	t.Run("JSON 格式错误", func(t *testing.T) {
		w := post(r, `{"email":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, binding.CodeBadRequest, decode(t, w).Error.Code)
	})

	t.Run("验证失败", func(t *testing.T) {
		w := post(r, `{"email":"nope","age":3}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		resp := decode(t, w)
		assert.Equal(t, binding.CodeValidationError, resp.Error.Code)
		assert.Equal(t, map[string][]string{
			"Email": {"The member Email failed the 'email' check."},
			"Age":   {"too young"},
		}, resp.Error.Details)
	})
}

// TestAbortWithError 测试错误类型到状态码的映射
func TestAbortWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "快速失败错误",
			err:    errors.Wrap(&core.GuardError{Member: "Age", Message: "too young"}, "signup"),
			status: http.StatusUnprocessableEntity,
			code:   binding.CodeValidationError,
		},
		{
			name:   "定义期错误",
			err:    errors.Wrap(core.ErrDuplicateRule, "Age"),
			status: http.StatusInternalServerError,
			code:   binding.CodeInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			binding.AbortWithError(c, tt.err)

			assert.True(t, c.IsAborted())
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

// TestDetails 测试错误按成员分组
func TestDetails(t *testing.T) {
	assert.Nil(t, binding.Details(nil))
}
