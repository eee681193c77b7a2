package pocketbase

import (
	"context"

	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// FetchAll 逐頁讀取整個集合，遇到不滿一頁即停止。
// 頁面嚴格依序請求；任一頁失敗則整體失敗，不回傳部分結果。
func (c *Client) FetchAll(ctx context.Context, collection string, opts ListOptions) ([]Record, error) {
	if opts.PerPage <= 0 {
		opts.PerPage = c.perPage
	}

	var all []Record
	for page := 1; ; page++ {
		items, err := c.ListPage(ctx, collection, page, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < opts.PerPage {
			break
		}
	}

	common.LogDebug("集合讀取完成",
		zap.String("collection", collection),
		zap.Int("total", len(all)),
	)
	return all, nil
}
