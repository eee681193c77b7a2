package substitute

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/core/pocketbase"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

const collection = "AlternativeIngredients"

// Suggestion 一組替代食材名稱與共用理由
type Suggestion struct {
	Names  []string
	Reason string
}

// Lister 讀取單頁記錄
type Lister interface {
	ListPage(ctx context.Context, collection string, page int, opts pocketbase.ListOptions) ([]pocketbase.Record, error)
}

// Lookup 從 AlternativeIngredients 集合查詢替代食材
type Lookup struct {
	records       Lister
	maxCandidates int
}

// NewLookup 創建替代食材查詢
func NewLookup(records Lister, maxCandidates int) *Lookup {
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	return &Lookup{records: records, maxCandidates: maxCandidates}
}

// Lookup 查詢 (產品, 原食材) 對應的替代食材，最多 maxCandidates 筆並保持來源順序
func (l *Lookup) Lookup(ctx context.Context, product, ingredient string) (Suggestion, error) {
	filter := "PRODUCT_NAME=" + pocketbase.QuoteFilterValue(product) +
		" && ORIGINAL_INGREDIENT=" + pocketbase.QuoteFilterValue(ingredient)

	items, err := l.records.ListPage(ctx, collection, 1, pocketbase.ListOptions{PerPage: 1, Filter: filter})
	if err != nil {
		return Suggestion{}, err
	}
	if len(items) == 0 {
		common.LogDebug("查無替代食材", zap.String("product", product), zap.String("ingredient", ingredient))
		return Suggestion{}, nil
	}

	return Suggestion{
		Names:  SplitCandidates(items[0].String("ALTERNATIVE_INGREDIENTS"), l.maxCandidates),
		Reason: strings.TrimSpace(items[0].String("REASON")),
	}, nil
}

// SplitCandidates 解析以 | 分隔的名稱：去除空白與空值、忽略大小寫去重、截斷至 max
func SplitCandidates(raw string, max int) []string {
	seen := make(map[string]bool)
	var names []string
	for _, part := range strings.Split(raw, "|") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
		if len(names) == max {
			break
		}
	}
	return names
}

// GenerateReason 資料未提供理由時，依原食材屬性與替代名稱產生說明
func GenerateReason(cost float64, availability, alternative string) string {
	var reasons []string
	if cost > 5 {
		reasons = append(reasons, "Lower cost option")
	}
	if availability != "In Stock" {
		reasons = append(reasons, "Better availability")
	}

	alt := strings.ToLower(alternative)
	switch {
	case strings.Contains(alt, "oil"):
		reasons = append(reasons, "Healthier fat profile")
	case strings.Contains(alt, "organic"), strings.Contains(alt, "natural"):
		reasons = append(reasons, "Natural alternative")
	default:
		reasons = append(reasons, "Suitable substitute")
	}
	return strings.Join(reasons, ", ")
}
