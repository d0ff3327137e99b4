package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/twissandra/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func write(c *gin.Context, status int, message string, data interface{}) {
	code := 0
	if status >= http.StatusBadRequest {
		code = status
	}
	c.JSON(status, Response{Code: code, Message: message, Data: data})
}

func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, "success", data)
}

func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, "created", data)
}

// Accepted 请求已落地但未完全生效（如部分扇出失败）
func Accepted(c *gin.Context, message string, data interface{}) {
	write(c, http.StatusAccepted, message, data)
}

func BadRequest(c *gin.Context, message string) {
	write(c, http.StatusBadRequest, message, nil)
}

func Unauthorized(c *gin.Context, message string) {
	write(c, http.StatusUnauthorized, message, nil)
}

func NotFound(c *gin.Context, message string) {
	write(c, http.StatusNotFound, message, nil)
}

func Conflict(c *gin.Context, message string) {
	write(c, http.StatusConflict, message, nil)
}

func TooManyRequests(c *gin.Context, message string) {
	write(c, http.StatusTooManyRequests, message, nil)
	c.Abort()
}

func ServiceUnavailable(c *gin.Context, err error) {
	logger.Warn("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
	write(c, http.StatusServiceUnavailable, "service temporarily unavailable", nil)
}

func InternalError(c *gin.Context, err error) {
	logger.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
	write(c, http.StatusInternalServerError, "internal server error", nil)
}
