package scoring

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// Score 單一候選食材的評分
type Score struct {
	Name       string   `json:"name"`
	Value      *float64 `json:"score,omitempty"`
	Percentage *float64 `json:"score_percentage,omitempty"`
	Level      Level    `json:"score_level"`
	Err        error    `json:"-"`
}

// Store 評分快取
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type scoreRequest struct {
	Ingredient string `json:"ingredient"`
}

type scoreResponse struct {
	Success         bool     `json:"success"`
	Score           *float64 `json:"score"`
	ScorePercentage *float64 `json:"score_percentage"`
	ScoreLevel      string   `json:"score_level"`
	Error           string   `json:"error"`
}

// Client 評分服務客戶端
type Client struct {
	http           *resty.Client
	maxConcurrency int
	store          Store
}

// NewClient 創建評分客戶端，store 可為 nil
func NewClient(cfg *config.ScoringConfig, store Store) *Client {
	n := cfg.MaxConcurrency
	if n <= 0 {
		n = 1
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
		maxConcurrency: n,
		store:          store,
	}
}

func cacheKey(name string) string {
	return "score:" + strings.ToLower(strings.TrimSpace(name))
}

// Score 取得單一食材評分
func (c *Client) Score(ctx context.Context, name string) (Score, error) {
	if s, ok := c.cached(ctx, name); ok {
		return s, nil
	}

	op := "scoring.score " + name
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(scoreRequest{Ingredient: name}).
		Post("/score-ingredient")
	if err != nil {
		err = common.NewCommunicationError(op, err)
		common.LogRemoteCall(op, time.Since(start), err)
		return Score{}, err
	}
	if !resp.IsSuccess() {
		err := common.NewServiceError(op, resp.StatusCode(), common.Truncate(resp.String(), 200))
		common.LogRemoteCall(op, time.Since(start), err)
		return Score{}, err
	}

	var result scoreResponse
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		err := common.NewError(common.ErrCodeService, op+": invalid response body", http.StatusBadGateway, err)
		common.LogRemoteCall(op, time.Since(start), err)
		return Score{}, err
	}
	if !result.Success {
		detail := result.Error
		if detail == "" {
			detail = "success=false"
		}
		err := common.NewServiceError(op, resp.StatusCode(), detail)
		common.LogRemoteCall(op, time.Since(start), err)
		return Score{}, err
	}

	s := Score{
		Name:       name,
		Value:      result.Score,
		Percentage: result.ScorePercentage,
		Level:      ParseLevel(result.ScoreLevel),
	}
	common.LogRemoteCall(op, time.Since(start), nil, zap.String("level", string(s.Level)))
	c.remember(ctx, s)
	return s, nil
}

// ScoreAll 並行評分，全部完成後回傳；個別失敗降級為 Unknown，不影響其他項目
func (c *Client) ScoreAll(ctx context.Context, names []string) []Score {
	mapper := iter.Mapper[string, Score]{MaxGoroutines: c.maxConcurrency}
	scores := mapper.Map(names, func(name *string) Score {
		s, err := c.Score(ctx, *name)
		if err != nil {
			return Score{Name: *name, Level: LevelUnknown, Err: err}
		}
		return s
	})

	failed := 0
	for _, s := range scores {
		if s.Err != nil {
			failed++
		}
	}
	common.LogInfo("候選食材評分完成",
		zap.Int("total", len(names)),
		zap.Int("failed", failed),
	)
	return scores
}

func (c *Client) cached(ctx context.Context, name string) (Score, bool) {
	if c.store == nil {
		return Score{}, false
	}
	key := cacheKey(name)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		common.LogCacheMiss("score", key)
		return Score{}, false
	}
	var s Score
	if err := common.ParseJSON(raw, &s); err != nil {
		common.LogWarn("評分快取內容無效", zap.String("key", key), zap.Error(err))
		return Score{}, false
	}
	s.Name = name
	common.LogCacheHit("score", key)
	return s, true
}

func (c *Client) remember(ctx context.Context, s Score) {
	if c.store == nil {
		return
	}
	raw, err := common.ToJSON(s)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, cacheKey(s.Name), raw); err != nil {
		common.LogDebug("評分快取寫入失敗", zap.String("name", s.Name), zap.Error(err))
	}
}

// String 便於日誌輸出
func (s Score) String() string {
	if s.Value == nil {
		return fmt.Sprintf("%s: %s", s.Name, s.Level)
	}
	return fmt.Sprintf("%s: %.2f (%s)", s.Name, *s.Value, s.Level)
}
