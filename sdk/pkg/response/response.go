// Package response 统一的 HTTP 响应体
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// Response 响应体
type Response struct {
	Code      int         `json:"code"`
	Msg       string      `json:"msg,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

func requestID(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	if id := logger.RequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader(string(logger.TrafficKey))
}

func write(c *gin.Context, status int, data interface{}, msg string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      status,
		Msg:       msg,
		Data:      data,
		RequestID: requestID(c),
	})
}

// OK 200
func OK(c *gin.Context, data interface{}, msg string) {
	write(c, http.StatusOK, data, msg)
}

// Accepted 202，命令已受理，后续状态经事件异步推进
func Accepted(c *gin.Context, data interface{}, msg string) {
	write(c, http.StatusAccepted, data, msg)
}


// Error 按给定状态码返回错误；code 为 0 时按错误类别推断
func Error(c *gin.Context, code int, err error, msg string) {
	if code == 0 {
		code = errs.StatusCode(err)
	}
	if msg == "" && err != nil {
		msg = err.Error()
	}
	if err != nil {
		_ = c.Error(err)
	}
	write(c, code, nil, msg)
}

// Fail 按 errs.StatusCode 映射状态码
func Fail(c *gin.Context, err error) {
	Error(c, 0, err, "")
}
