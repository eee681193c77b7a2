package reformulation

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// respondError 依錯誤代碼輸出 {error, code, details}
func respondError(c *gin.Context, err error) {
	status := common.ErrorStatus(err)
	code := common.ErrorCode(err)
	message := err.Error()

	var ce *common.CustomError
	if errors.As(err, &ce) {
		message = ce.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		code = common.ErrCodeGatewayTimeout
		message = common.ErrGatewayTimeout.Message
	}

	fields := []zap.Field{
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", requestid.Get(c)),
		zap.String("code", code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		common.LogError("請求處理失敗", fields...)
	} else {
		common.LogDebug("請求被拒絕", fields...)
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error":   message,
		"code":    code,
		"details": err.Error(),
	})
}

// bindJSON 解析請求體，失敗時回傳 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, common.Wrap(common.ErrInvalidRequest, err.Error()))
		return false
	}
	return true
}
