package reformulation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/core/compliance"
	recipeService "github.com/SrushtiQL/i4c/internal/core/recipe"
	reform "github.com/SrushtiQL/i4c/internal/core/reformulation"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// RecipeRepository 配方資料存取
type RecipeRepository interface {
	NextID(ctx context.Context) recipeService.Allocation
	FindByFieldID(ctx context.Context, fieldID string) (*recipeService.Recipe, error)
	LoadRows(ctx context.Context, rec *recipeService.Recipe) ([]reform.IngredientRow, error)
	ListCountries(ctx context.Context) ([]recipeService.Country, error)
	FindCountry(ctx context.Context, key string) (*recipeService.Country, error)
	Finalize(ctx context.Context, req recipeService.FinalizeRequest) (*recipeService.FinalizeResult, error)
}

// Formulator 配方建議與評分流程
type Formulator interface {
	Formulate(ctx context.Context, s *reform.Session, rowIDs []string, j compliance.Jurisdiction) (*reform.Report, error)
	FormulateEntireRecipe(ctx context.Context, s *reform.Session, j compliance.Jurisdiction) (*reform.Report, error)
	ScoreAlternatives(ctx context.Context, s *reform.Session, rowID string) (reform.IngredientRow, error)
}

// CreateSessionRequest 以配方編號開啟審核會話
type CreateSessionRequest struct {
	RecipeID string `json:"recipe_id" binding:"required"`
}

// SelectionRequest 操作員勾選的食材列
type SelectionRequest struct {
	IngredientIDs []string `json:"ingredient_ids" binding:"required"`
}

// FormulateRequest 對勾選的食材（或整份配方）執行配方建議
type FormulateRequest struct {
	Country       string   `json:"country" binding:"required"`
	IngredientIDs []string `json:"ingredient_ids,omitempty"`
	EntireRecipe  bool     `json:"entire_recipe,omitempty"`
}

// ApproveRequest 操作員選擇的選項；0 表示保留目前食材
type ApproveRequest struct {
	SelectedIndex *int `json:"selected_index" binding:"required,min=0"`
}

// FinalizeRequest 建立新配方的目標國家
type FinalizeRequest struct {
	Country string `json:"country" binding:"required"`
	Type    string `json:"type,omitempty"`
}

// FormulateResponse 配方建議結果與更新後的會話
type FormulateResponse struct {
	Country *recipeService.Country `json:"country"`
	Report  *reform.Report         `json:"report"`
	Session reform.View            `json:"session"`
}

// ApproveResponse 核准結果
type ApproveResponse struct {
	Row         reform.IngredientRow `json:"row"`
	AllApproved bool                 `json:"all_approved"`
}

// Handler 配方審核處理程序
type Handler struct {
	recipes    RecipeRepository
	formulator Formulator
	sessions   *reform.SessionStore
}

// NewHandler 創建配方審核處理程序
func NewHandler(recipes RecipeRepository, formulator Formulator, sessions *reform.SessionStore) *Handler {
	return &Handler{
		recipes:    recipes,
		formulator: formulator,
		sessions:   sessions,
	}
}

// session 取得路徑中的會話，找不到時回傳 404
func (h *Handler) session(c *gin.Context) (*reform.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

// ListCountries 列出可選的目標國家
func (h *Handler) ListCountries(c *gin.Context) {
	countries, err := h.recipes.ListCountries(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"countries": countries})
}

// NextRecipeID 預覽下一個配方編號
func (h *Handler) NextRecipeID(c *gin.Context) {
	c.JSON(http.StatusOK, h.recipes.NextID(c.Request.Context()))
}

// CreateSession 載入配方食材並開啟審核會話
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	rec, err := h.recipes.FindByFieldID(ctx, req.RecipeID)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.recipes.LoadRows(ctx, rec)
	if err != nil {
		respondError(c, err)
		return
	}

	s := h.sessions.Create(rec.Ref(), rows)
	c.JSON(http.StatusCreated, s.View())
}

// GetSession 取得會話目前狀態
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// DeleteSession 結束會話
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateSelection 更新勾選的食材列
func (h *Handler) UpdateSelection(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req SelectionRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.SetSelection(req.IngredientIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// Formulate 查詢替代食材、驗證法規並將結果寫回食材列
func (h *Handler) Formulate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req FormulateRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	country, err := h.recipes.FindCountry(ctx, req.Country)
	if err != nil {
		respondError(c, err)
		return
	}
	if !country.ExplicitMatch {
		common.LogWarn("未知國家，使用預設轄區",
			zap.String("country", req.Country),
			zap.String("jurisdiction", string(country.Jurisdiction)),
		)
	}

	var report *reform.Report
	if req.EntireRecipe {
		report, err = h.formulator.FormulateEntireRecipe(ctx, s, country.Jurisdiction)
	} else {
		report, err = h.formulator.Formulate(ctx, s, req.IngredientIDs, country.Jurisdiction)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, FormulateResponse{
		Country: country,
		Report:  report,
		Session: s.View(),
	})
}

// ScoreRow 為食材列的替代選項評分
func (h *Handler) ScoreRow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	row, err := h.formulator.ScoreAlternatives(c.Request.Context(), s, c.Param("row"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// ApproveRow 套用操作員的選擇
func (h *Handler) ApproveRow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req ApproveRequest
	if !bindJSON(c, &req) {
		return
	}

	row, allApproved, err := s.Approve(c.Param("row"), *req.SelectedIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ApproveResponse{Row: row, AllApproved: allApproved})
}

// Ingredients 取得標籤用的最終食材清單
func (h *Handler) Ingredients(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	rows := s.Rows()
	c.JSON(http.StatusOK, gin.H{
		"ingredients":  recipeService.FinalIngredientNames(rows),
		"all_approved": reform.AllApproved(rows),
	})
}

// Finalize 所有食材核准後建立新配方並結束會話
func (h *Handler) Finalize(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req FinalizeRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	country, err := h.recipes.FindCountry(ctx, req.Country)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.recipes.Finalize(ctx, recipeService.FinalizeRequest{
		Source:  s.Recipe,
		Rows:    s.Rows(),
		Country: country,
		Type:    req.Type,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	_ = h.sessions.Delete(s.ID)
	c.JSON(http.StatusCreated, result)
}
