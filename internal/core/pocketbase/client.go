package pocketbase

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// DefaultPerPage PocketBase 單頁上限
const DefaultPerPage = 500

// Client PocketBase REST 客戶端
type Client struct {
	http    *resty.Client
	auth    *TokenCache
	perPage int
}

// NewClient 創建 PocketBase 客戶端
func NewClient(cfg *config.PocketBaseConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	return &Client{
		http:    httpClient,
		auth:    NewTokenCache(httpClient, cfg.AdminEmail, cfg.AdminPassword),
		perPage: perPage,
	}
}

// Auth 回傳客戶端使用的憑證快取
func (c *Client) Auth() *TokenCache {
	return c.auth
}

type listResponse struct {
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	TotalItems int      `json:"totalItems"`
	Items      []Record `json:"items"`
}

// ListPage 取得集合中的單一頁
func (c *Client) ListPage(ctx context.Context, collection string, page int, opts ListOptions) ([]Record, error) {
	op := fmt.Sprintf("pocketbase.list %s page %d", collection, page)

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = c.perPage
	}

	req := c.http.R().
		SetContext(ctx).
		SetPathParam("collection", collection).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("perPage", strconv.Itoa(perPage))
	if opts.Filter != "" {
		req.SetQueryParam("filter", opts.Filter)
	}
	if opts.Sort != "" {
		req.SetQueryParam("sort", opts.Sort)
	}
	if opts.Fields != "" {
		req.SetQueryParam("fields", opts.Fields)
	}

	start := time.Now()
	resp, err := req.Get("/api/collections/{collection}/records")
	if err != nil {
		err = common.NewCommunicationError(op, err)
		common.LogRemoteCall(op, time.Since(start), err)
		return nil, err
	}
	if !resp.IsSuccess() {
		err := common.NewServiceError(op, resp.StatusCode(), common.Truncate(resp.String(), 200))
		common.LogRemoteCall(op, time.Since(start), err)
		return nil, err
	}

	var result listResponse
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		err := common.NewError(common.ErrCodeService, op+": invalid response body", http.StatusBadGateway, err)
		common.LogRemoteCall(op, time.Since(start), err)
		return nil, err
	}

	common.LogRemoteCall(op, time.Since(start), nil, zap.Int("count", len(result.Items)))
	return result.Items, nil
}

// Create 以管理員憑證建立記錄，憑證失效時重新登入並重試一次
func (c *Client) Create(ctx context.Context, collection string, body map[string]interface{}) (Record, error) {
	op := "pocketbase.create " + collection

	resp, err := c.withAuth(ctx, op, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetPathParam("collection", collection).
			SetBody(body).
			Post("/api/collections/{collection}/records")
	})
	if err != nil {
		return nil, err
	}

	var record Record
	if err := common.ParseJSONBytes(resp.Body(), &record); err != nil {
		return nil, common.NewError(common.ErrCodeService, op+": invalid response body", http.StatusBadGateway, err)
	}
	return record, nil
}

// Delete 以管理員憑證刪除記錄，憑證失效時重新登入並重試一次
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	op := fmt.Sprintf("pocketbase.delete %s %s", collection, id)

	_, err := c.withAuth(ctx, op, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetPathParam("collection", collection).
			SetPathParam("id", id).
			Delete("/api/collections/{collection}/records/{id}")
	})
	return err
}

// withAuth 帶管理員憑證送出請求；第一次收到 401 時清除憑證並重試
func (c *Client) withAuth(ctx context.Context, op string, send func(req *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.auth.GetOrAuthenticate(ctx)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := send(c.http.R().SetContext(ctx).SetHeader("Authorization", token))
		if err != nil {
			err = common.NewCommunicationError(op, err)
			common.LogRemoteCall(op, time.Since(start), err)
			return nil, err
		}
		if resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			common.LogWarn("PocketBase 憑證失效，重新登入", zap.String("op", op))
			c.auth.Invalidate()
			continue
		}
		if !resp.IsSuccess() {
			err := common.NewServiceError(op, resp.StatusCode(), common.Truncate(resp.String(), 200))
			common.LogRemoteCall(op, time.Since(start), err)
			return nil, err
		}
		common.LogRemoteCall(op, time.Since(start), nil)
		return resp, nil
	}
}

// Health 檢查 PocketBase 是否可用
func (c *Client) Health(ctx context.Context) error {
	op := "pocketbase.health"
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		err = common.NewCommunicationError(op, err)
		common.LogRemoteCall(op, time.Since(start), err)
		return err
	}
	if !resp.IsSuccess() {
		err := common.NewServiceError(op, resp.StatusCode(), common.Truncate(resp.String(), 200))
		common.LogRemoteCall(op, time.Since(start), err)
		return err
	}
	return nil
}
