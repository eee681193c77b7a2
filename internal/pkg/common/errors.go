package common

import (
	"errors"
	"fmt"
	"net/http"
)

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Is 以錯誤代碼比對，讓 errors.Is(err, ErrServiceError) 成立
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// NewCommunicationError 遠端呼叫傳輸失敗（網路、逾時）
func NewCommunicationError(op string, err error) *CustomError {
	return NewError(ErrCodeCommunication, fmt.Sprintf("%s: communication failed", op), http.StatusBadGateway, err)
}

// NewServiceError 遠端服務回應非成功狀態或明確錯誤內容
func NewServiceError(op string, status int, body string) *CustomError {
	msg := fmt.Sprintf("%s: service returned status %d", op, status)
	if body != "" {
		msg += " (" + body + ")"
	}
	return NewError(ErrCodeService, msg, http.StatusBadGateway, nil)
}

// ErrorStatus 取得錯誤對應的 HTTP 狀態碼
func ErrorStatus(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) && ce.Status != 0 {
		return ce.Status
	}
	return http.StatusInternalServerError
}

// ErrorCode 取得錯誤代碼
func ErrorCode(err error) string {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternalError
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest  = "INVALID_REQUEST"   // 400
	ErrCodeNotFound        = "NOT_FOUND"         // 404
	ErrCodeConflict        = "CONFLICT"          // 409
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS" // 429

	// 審核流程錯誤
	ErrCodeInvalidTransition = "INVALID_TRANSITION"    // 409
	ErrCodeRestricted        = "RESTRICTED_INGREDIENT" // 409
	ErrCodeUnresolvableRow   = "UNRESOLVABLE_ROW"      // 422
	ErrCodeNotAllApproved    = "NOT_ALL_APPROVED"      // 409

	// 服務器錯誤 (5xx)
	ErrCodeInternalError  = "INTERNAL_ERROR"  // 500
	ErrCodeGatewayTimeout = "GATEWAY_TIMEOUT" // 504

	// 遠端協作者錯誤
	ErrCodeCommunication = "COMMUNICATION_ERROR"
	ErrCodeService       = "SERVICE_ERROR"
	ErrCodeInconclusive  = "INCONCLUSIVE_VALIDATION"
)

// 預定義錯誤
var (
	// 客戶端錯誤
	ErrInvalidRequest = NewError(ErrCodeInvalidRequest, "無效的請求", http.StatusBadRequest, nil)
	ErrNotFound       = NewError(ErrCodeNotFound, "資源不存在", http.StatusNotFound, nil)
	ErrConflict       = NewError(ErrCodeConflict, "資源衝突", http.StatusConflict, nil)

	// 服務器錯誤
	ErrGatewayTimeout = NewError(ErrCodeGatewayTimeout, "網關超時", http.StatusGatewayTimeout, nil)

	// 遠端協作者錯誤（用於 errors.Is 比對）
	ErrCommunication = NewError(ErrCodeCommunication, "遠端通訊失敗", http.StatusBadGateway, nil)
	ErrServiceError  = NewError(ErrCodeService, "遠端服務錯誤", http.StatusBadGateway, nil)

	// 業務錯誤
	ErrInvalidTransition = NewError(ErrCodeInvalidTransition, "不允許的狀態轉換", http.StatusConflict, nil)
	ErrRestricted        = NewError(ErrCodeRestricted, "目前食材受限，必須選擇替代食材", http.StatusConflict, nil)
	ErrUnresolvableRow   = NewError(ErrCodeUnresolvableRow, "目前食材受限且無合規替代食材", http.StatusUnprocessableEntity, nil)
	ErrNotAllApproved    = NewError(ErrCodeNotAllApproved, "尚有食材未核准", http.StatusConflict, nil)
	ErrCacheFull         = NewError("CACHE_FULL", "緩存已滿", http.StatusServiceUnavailable, nil)
	ErrCacheDisabled     = NewError("CACHE_DISABLED", "緩存已禁用", http.StatusServiceUnavailable, nil)
	ErrCacheMiss         = NewError("CACHE_MISS", "快取未命中", http.StatusNotFound, nil)
)

// Wrap 以預定義錯誤為基礎附加細節，保留錯誤代碼與狀態碼
func Wrap(base *CustomError, detail string) *CustomError {
	return NewError(base.Code, base.Message+"："+detail, base.Status, nil)
}
