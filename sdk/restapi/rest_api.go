// Package restapi 控制器基类，HTTP 模块嵌入 RestApi 复用绑定与响应
package restapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/response"
)

type RestApi struct{}

// GetLogger 获取上下文提供的日志器，对GetRequestLogger做封装，可实现解耦。
func (e *RestApi) GetLogger(c *gin.Context) *zap.Logger {
	return logger.GetRequestLogger(c)
}

// Bind 绑定请求体，失败归为 ErrValidation
func (e *RestApi) Bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errs.Validationf("%v", err)
	}
	return nil
}

// CorrelationID 请求的关联 ID，即 X-Correlation-ID 或中间件生成的请求 ID
func (e *RestApi) CorrelationID(c *gin.Context) string {
	return logger.RequestID(c.Request.Context())
}

// Error 错误处理，状态码由错误类别决定
func (e *RestApi) Error(c *gin.Context, err error) {
	l := e.GetLogger(c)
	if errs.StatusCode(err) >= 500 {
		l.Error("request failed", zap.Error(err))
	} else {
		l.Info("request rejected", zap.Error(err))
	}
	response.Fail(c, err)
}

// OK 通常成功数据处理
func (e *RestApi) OK(c *gin.Context, data interface{}, msg string) {
	response.OK(c, data, msg)
}

// Accepted 命令已受理
func (e *RestApi) Accepted(c *gin.Context, data interface{}, msg string) {
	response.Accepted(c, data, msg)
}
