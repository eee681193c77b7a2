package recipe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SrushtiQL/i4c/internal/core/compliance"
	"github.com/SrushtiQL/i4c/internal/core/pocketbase"
	"github.com/SrushtiQL/i4c/internal/core/reformulation"
	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// 寫入失敗後清除記錄的時限
const rollbackTimeout = 30 * time.Second

// PocketBase 集合名稱
const (
	CollectionRecipe           = "recipe"
	CollectionRecipeIngredient = "recipeingredient"
	CollectionIngredients      = "ingredients"
	CollectionCountry          = "country"
)

// Store 配方資料來源
type Store interface {
	Pager
	ListPage(ctx context.Context, collection string, page int, opts pocketbase.ListOptions) ([]pocketbase.Record, error)
	Create(ctx context.Context, collection string, body map[string]interface{}) (pocketbase.Record, error)
	Delete(ctx context.Context, collection, id string) error
}

// Recipe 配方記錄
type Recipe struct {
	ID        string `json:"id"`
	FieldID   string `json:"field_id"`
	Name      string `json:"name"`
	RegionFK  string `json:"region_fk"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Lifecycle string `json:"lifecycle"`
	Version   int    `json:"ver"`
}

// Ref 轉為審核會話使用的配方參照
func (r *Recipe) Ref() reformulation.RecipeRef {
	return reformulation.RecipeRef{ID: r.ID, FieldID: r.FieldID, Name: r.Name, RegionFK: r.RegionFK}
}

// Country 國家記錄與對應的法規轄區
type Country struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Code         string                  `json:"code"`
	FieldID      string                  `json:"field_id"`
	RegionFK     string                  `json:"region_fk"`
	Jurisdiction compliance.Jurisdiction `json:"jurisdiction"`
	// ExplicitMatch 為 false 時轄區來自預設值
	ExplicitMatch bool `json:"explicit_match"`
}

// RegionKey 新配方 region_fk 欄位使用的值
func (c *Country) RegionKey() string {
	if c.Code != "" {
		return c.Code
	}
	return c.ID
}

// FinalizeRequest 建立審核完成的新配方
type FinalizeRequest struct {
	Source  reformulation.RecipeRef
	Rows    []reformulation.IngredientRow
	Country *Country
	Type    string
}

// FinalizeResult 新配方與其食材記錄
type FinalizeResult struct {
	Recipe              Recipe   `json:"recipe"`
	IngredientRecordIDs []string `json:"ingredient_record_ids"`
	Ingredients         []string `json:"ingredients"`
	NeedsReconciliation bool     `json:"needs_reconciliation"`
}

// Repository 配方讀寫
type Repository struct {
	store  Store
	ids    *IDAllocator
	prefix string
	width  int
}

// NewRepository 創建配方儲存庫
func NewRepository(store Store, cfg *config.RecipeConfig) *Repository {
	return &Repository{
		store:  store,
		ids:    NewIDAllocator(store, CollectionRecipe, "field_id"),
		prefix: cfg.IDPrefix,
		width:  cfg.IDWidth,
	}
}

// NextID 分配下一個配方編號
func (r *Repository) NextID(ctx context.Context) Allocation {
	return r.ids.NextID(ctx, r.prefix, r.width)
}

// FindByFieldID 以配方編號查詢
func (r *Repository) FindByFieldID(ctx context.Context, fieldID string) (*Recipe, error) {
	items, err := r.store.ListPage(ctx, CollectionRecipe, 1, pocketbase.ListOptions{
		PerPage: 1,
		Filter:  "field_id=" + pocketbase.QuoteFilterValue(fieldID),
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, common.Wrap(common.ErrNotFound, "recipe "+fieldID)
	}
	rec := recipeFromRecord(items[0])
	return &rec, nil
}

func recipeFromRecord(rec pocketbase.Record) Recipe {
	return Recipe{
		ID:        rec.ID(),
		FieldID:   rec.String("field_id"),
		Name:      rec.String("name"),
		RegionFK:  rec.String("region_fk"),
		Type:      rec.String("type"),
		Status:    rec.String("status"),
		Lifecycle: rec.String("lifecycle"),
		Version:   int(rec.Float("ver")),
	}
}

// LoadRows 讀取配方食材並建立待審核的食材列。
// ingredient_fk 與 originalingredient_fk 皆有值時直接使用名稱，否則經 ingredients 集合解析，解析失敗則沿用原值。
func (r *Repository) LoadRows(ctx context.Context, rec *Recipe) ([]reformulation.IngredientRow, error) {
	links, err := r.store.FetchAll(ctx, CollectionRecipeIngredient, pocketbase.ListOptions{
		Filter: "recipe_fk=" + pocketbase.QuoteFilterValue(rec.ID),
	})
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		common.LogWarn("配方沒有食材", zap.String("recipe", rec.FieldID))
		return []reformulation.IngredientRow{}, nil
	}

	direct := true
	for _, l := range links {
		if l.String("ingredient_fk") == "" || l.String("originalingredient_fk") == "" {
			direct = false
			break
		}
	}

	names := map[string]pocketbase.Record{}
	if !direct {
		names = r.resolveIngredients(ctx)
	}

	rows := make([]reformulation.IngredientRow, 0, len(links))
	for _, l := range links {
		fk := l.String("ingredient_fk")
		name := fk
		role := l.String("functionalrole")
		if !direct {
			if ing, ok := names[fk]; ok {
				if n := ing.String("name"); n != "" {
					name = n
				}
				if role == "" {
					role = ing.String("functional_role")
				}
			}
		}

		row := reformulation.NewRow(l.ID(), rec.Name, name, l.String("quantity"), l.String("unit"))
		row.FunctionalRole = role
		if direct {
			row.OriginalIngredient = l.String("originalingredient_fk")
		}
		rows = append(rows, row)
	}

	common.LogInfo("配方食材已載入",
		zap.String("recipe", rec.FieldID),
		zap.Int("rows", len(rows)),
		zap.Bool("direct_names", direct),
	)
	return rows, nil
}

// resolveIngredients 建立 field_id -> 食材記錄對照；失敗時回傳空表
func (r *Repository) resolveIngredients(ctx context.Context) map[string]pocketbase.Record {
	out := map[string]pocketbase.Record{}
	items, err := r.store.FetchAll(ctx, CollectionIngredients, pocketbase.ListOptions{})
	if err != nil {
		common.LogWarn("食材名稱解析失敗，改用原始編號", zap.Error(err))
		return out
	}
	for _, ing := range items {
		out[ing.String("field_id")] = ing
	}
	return out
}

// ListCountries 依名稱排序讀取國家並標註法規轄區
func (r *Repository) ListCountries(ctx context.Context) ([]Country, error) {
	items, err := r.store.FetchAll(ctx, CollectionCountry, pocketbase.ListOptions{Sort: "name"})
	if err != nil {
		return nil, err
	}

	countries := make([]Country, 0, len(items))
	for _, it := range items {
		c := Country{
			ID:       it.ID(),
			Name:     it.String("name"),
			Code:     it.String("code"),
			FieldID:  it.String("field_id"),
			RegionFK: it.String("region_fk"),
		}
		c.Jurisdiction, c.ExplicitMatch = compliance.ParseJurisdiction(c.Name)
		countries = append(countries, c)
	}
	return countries, nil
}

// FindCountry 以 id、代碼或名稱（不分大小寫）尋找國家；找不到時以名稱建立臨時國家
func (r *Repository) FindCountry(ctx context.Context, key string) (*Country, error) {
	countries, err := r.ListCountries(ctx)
	if err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	for i := range countries {
		c := &countries[i]
		if c.ID == key || strings.EqualFold(c.Code, key) || strings.EqualFold(c.Name, key) {
			return c, nil
		}
	}

	j, ok := compliance.ParseJurisdiction(key)
	return &Country{Name: key, Code: string(j), Jurisdiction: j, ExplicitMatch: ok}, nil
}

// Finalize 核准閘門通過後建立新配方，並行寫入所有食材記錄
func (r *Repository) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	if !reformulation.AllApproved(req.Rows) {
		return nil, common.ErrNotAllApproved
	}

	alloc := r.NextID(ctx)
	recipeType := req.Type
	if recipeType == "" {
		recipeType = "Standard"
	}
	region := req.Source.RegionFK
	if req.Country != nil {
		region = req.Country.RegionKey()
	}

	created, err := r.store.Create(ctx, CollectionRecipe, map[string]interface{}{
		"name":      req.Source.Name,
		"field_id":  alloc.ID,
		"region_fk": region,
		"type":      recipeType,
		"status":    "Draft",
		"lifecycle": "Validation",
		"ver":       1,
	})
	if err != nil {
		return nil, err
	}
	newRecipe := recipeFromRecord(created)
	if newRecipe.FieldID == "" {
		newRecipe.FieldID = alloc.ID
	}

	ids := make([]string, len(req.Rows))
	g, gctx := errgroup.WithContext(ctx)
	for i := range req.Rows {
		i, row := i, req.Rows[i]
		g.Go(func() error {
			rec, err := r.store.Create(gctx, CollectionRecipeIngredient, ingredientRecord(newRecipe.ID, row))
			if err != nil {
				return fmt.Errorf("ingredient %s: %w", row.FinalName(), err)
			}
			ids[i] = rec.ID()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		common.LogError("配方食材寫入失敗",
			zap.String("recipe", newRecipe.FieldID),
			zap.String("record", newRecipe.ID),
			zap.Error(err),
		)
		r.rollback(ctx, newRecipe, ids)
		return nil, err
	}

	result := &FinalizeResult{
		Recipe:              newRecipe,
		IngredientRecordIDs: ids,
		Ingredients:         FinalIngredientNames(req.Rows),
		NeedsReconciliation: alloc.Fallback,
	}
	common.LogInfo("新配方已建立",
		zap.String("recipe", newRecipe.FieldID),
		zap.String("source", req.Source.FieldID),
		zap.String("region", region),
		zap.Int("ingredients", len(ids)),
		zap.Bool("needs_reconciliation", alloc.Fallback),
	)
	return result, nil
}

// rollback 刪除已寫入的食材記錄與配方記錄；清除失敗僅記錄
func (r *Repository) rollback(ctx context.Context, rec Recipe, ingredientIDs []string) {
	// 原請求可能已取消，清除仍需完成
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	for _, id := range ingredientIDs {
		if id == "" {
			continue
		}
		if err := r.store.Delete(ctx, CollectionRecipeIngredient, id); err != nil {
			common.LogError("食材記錄清除失敗",
				zap.String("recipe", rec.FieldID),
				zap.String("record", id),
				zap.Error(err),
			)
		}
	}
	if err := r.store.Delete(ctx, CollectionRecipe, rec.ID); err != nil {
		common.LogError("配方記錄清除失敗",
			zap.String("recipe", rec.FieldID),
			zap.String("record", rec.ID),
			zap.Error(err),
		)
		return
	}
	common.LogWarn("配方建立已回復", zap.String("recipe", rec.FieldID))
}

func ingredientRecord(recipeID string, row reformulation.IngredientRow) map[string]interface{} {
	qty, unit := SplitQuantity(row.CurrentQuantity, row.CurrentUnit)
	replaced := row.Status == reformulation.StatusReplaced

	role := row.FunctionalRole
	isAlternative := 0
	if replaced {
		isAlternative = 1
		if c := row.ChosenCandidate(); c != nil {
			role = c.Justification
		}
	}

	return map[string]interface{}{
		"recipe_fk":             recipeID,
		"ingredient_fk":         row.FinalName(),
		"originalingredient_fk": row.CurrentIngredient,
		"quantity":              qty,
		"unit":                  unit,
		"isalternative":         isAlternative,
		"functionalrole":        role,
	}
}

// FinalIngredientNames 標籤使用的最終食材清單
func FinalIngredientNames(rows []reformulation.IngredientRow) []string {
	names := make([]string, len(rows))
	for i := range rows {
		names[i] = rows[i].FinalName()
	}
	return names
}

// SplitQuantity 從自由格式數量取出數值；unit 為空時以數量中的非數字部分作為單位
func SplitQuantity(quantity, unit string) (float64, string) {
	var digits strings.Builder
	var residue strings.Builder
	dots := 0
	for _, r := range quantity {
		switch {
		case r >= '0' && r <= '9':
			// 第二個小數點之後的數字忽略
			if dots < 2 {
				digits.WriteRune(r)
			}
		case r == '.':
			dots++
			if dots == 1 {
				digits.WriteRune(r)
			}
		case r == ',':
			// 千分位
		case unicode.IsSpace(r):
		default:
			residue.WriteRune(r)
		}
	}

	value, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		value = 0
	}

	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = strings.TrimSpace(residue.String())
	}
	return value, unit
}
