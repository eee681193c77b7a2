package recipe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/core/pocketbase"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// Pager 逐頁讀取整個集合
type Pager interface {
	FetchAll(ctx context.Context, collection string, opts pocketbase.ListOptions) ([]pocketbase.Record, error)
}

// Allocation 配方編號分配結果
type Allocation struct {
	ID string `json:"id"`
	// Fallback 表示編號由時間戳產生，可能重複，需後續核對
	Fallback bool `json:"needs_reconciliation"`
}

// IDAllocator 掃描既有配方編號並計算下一個編號。
// 以單次掃描結果計算，不保證並行分配不衝突。
type IDAllocator struct {
	pager      Pager
	collection string
	field      string
	now        func() time.Time
}

// NewIDAllocator 創建編號分配器
func NewIDAllocator(pager Pager, collection, field string) *IDAllocator {
	return &IDAllocator{
		pager:      pager,
		collection: collection,
		field:      field,
		now:        time.Now,
	}
}

// NextID 回傳 prefix + 補零後的 (最大編號 + 1)；讀取失敗時改用時間戳末 width 位
func (a *IDAllocator) NextID(ctx context.Context, prefix string, width int) Allocation {
	records, err := a.pager.FetchAll(ctx, a.collection, pocketbase.ListOptions{Fields: a.field})
	if err != nil {
		id := prefix + clockSuffix(a.now(), width)
		common.LogWarn("配方編號使用備援值",
			zap.String("id", id),
			zap.Bool("needs_reconciliation", true),
			zap.Error(err),
		)
		return Allocation{ID: id, Fallback: true}
	}

	var max uint64
	found := 0
	for _, r := range records {
		value := r.String(a.field)
		if !strings.HasPrefix(value, prefix) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(value, prefix), 10, 64)
		if err != nil {
			continue
		}
		found++
		if n > max {
			max = n
		}
	}

	id := fmt.Sprintf("%s%0*d", prefix, width, max+1)
	common.LogInfo("配方編號已分配",
		zap.String("id", id),
		zap.Int("scanned", len(records)),
		zap.Int("matched", found),
	)
	return Allocation{ID: id}
}

// clockSuffix 取時間戳（毫秒）末 width 位
func clockSuffix(t time.Time, width int) string {
	s := strconv.FormatInt(t.UnixMilli(), 10)
	if len(s) > width {
		return s[len(s)-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}
