package compliance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// Verdict 單一食材的法規判定
type Verdict string

const (
	VerdictAllowed      Verdict = "allowed"
	VerdictDenied       Verdict = "denied"
	VerdictInconclusive Verdict = "inconclusive"
)

// Decision 法規驗證結果，與輸入名稱位置對應
type Decision struct {
	Name      string  `json:"name"`
	Allowed   *bool   `json:"allowed"`
	Verdict   Verdict `json:"verdict"`
	Reason    string  `json:"reason"`
	Reference string  `json:"regulation_reference"`
}

// Compliant 僅在服務明確允許時成立
func (d Decision) Compliant() bool {
	return d.Verdict == VerdictAllowed
}

type validateRequest struct {
	Ingredients []string `json:"ingredients"`
	Country     string   `json:"country"`
}

type validateResponse struct {
	ValidationResults []struct {
		Allowed             *bool  `json:"allowed"`
		Reason              string `json:"reason"`
		RegulationReference string `json:"regulation_reference"`
	} `json:"validation_results"`
	Error string `json:"error"`
}

// Client 法規驗證服務客戶端
type Client struct {
	http *resty.Client
}

// NewClient 創建法規驗證客戶端
func NewClient(cfg *config.ComplianceConfig) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Validate 以單次請求批次驗證食材名稱
func (c *Client) Validate(ctx context.Context, names []string, j Jurisdiction) ([]Decision, error) {
	if len(names) == 0 {
		return nil, nil
	}

	op := fmt.Sprintf("compliance.validate %s", j)
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(validateRequest{Ingredients: names, Country: string(j)}).
		Post("/validate-ingredients")
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

	var result validateResponse
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		err := common.NewError(common.ErrCodeService, op+": invalid response body", http.StatusBadGateway, err)
		common.LogRemoteCall(op, time.Since(start), err)
		return nil, err
	}
	if result.Error != "" {
		err := common.NewServiceError(op, resp.StatusCode(), result.Error)
		common.LogRemoteCall(op, time.Since(start), err)
		return nil, err
	}
	if len(result.ValidationResults) != len(names) {
		err := common.NewServiceError(op, resp.StatusCode(),
			fmt.Sprintf("expected %d results, got %d", len(names), len(result.ValidationResults)))
		common.LogRemoteCall(op, time.Since(start), err)
		return nil, err
	}

	decisions := make([]Decision, len(names))
	inconclusive := 0
	for i, r := range result.ValidationResults {
		d := Decision{
			Name:      names[i],
			Allowed:   r.Allowed,
			Reason:    r.Reason,
			Reference: r.RegulationReference,
		}
		switch {
		case r.Allowed == nil:
			d.Verdict = VerdictInconclusive
			inconclusive++
		case *r.Allowed:
			d.Verdict = VerdictAllowed
		default:
			d.Verdict = VerdictDenied
		}
		decisions[i] = d
	}

	common.LogRemoteCall(op, time.Since(start), nil,
		zap.Int("count", len(names)),
		zap.Int("inconclusive", inconclusive),
	)
	return decisions, nil
}
