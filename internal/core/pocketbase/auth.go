package pocketbase

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// TokenCache 管理員憑證快取，取得後重複使用直到被作廢
type TokenCache struct {
	http     *resty.Client
	identity string
	password string

	mu    sync.Mutex
	token string
}

// NewTokenCache 創建憑證快取
func NewTokenCache(httpClient *resty.Client, identity, password string) *TokenCache {
	return &TokenCache{
		http:     httpClient,
		identity: identity,
		password: password,
	}
}

// GetOrAuthenticate 回傳快取中的憑證，沒有時向 PocketBase 登入
func (t *TokenCache) GetOrAuthenticate(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" {
		return t.token, nil
	}

	const op = "pocketbase.auth"
	start := time.Now()
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"identity": t.identity,
			"password": t.password,
		}).
		Post("/api/admins/auth-with-password")
	if err != nil {
		err = common.NewCommunicationError(op, err)
		common.LogRemoteCall(op, time.Since(start), err)
		return "", err
	}
	if !resp.IsSuccess() {
		err := common.NewServiceError(op, resp.StatusCode(), common.Truncate(resp.String(), 200))
		common.LogRemoteCall(op, time.Since(start), err)
		return "", err
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil || result.Token == "" {
		err := common.NewServiceError(op, resp.StatusCode(), "missing token in response")
		common.LogRemoteCall(op, time.Since(start), err)
		return "", err
	}

	t.token = result.Token
	common.LogRemoteCall(op, time.Since(start), nil, zap.String("identity", t.identity))
	return t.token, nil
}

// Invalidate 作廢快取憑證，下次呼叫會重新登入
func (t *TokenCache) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}
