package reformulation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrushtiQL/i4c/internal/core/compliance"
	recipeService "github.com/SrushtiQL/i4c/internal/core/recipe"
	reform "github.com/SrushtiQL/i4c/internal/core/reformulation"
	"github.com/SrushtiQL/i4c/internal/core/scoring"
	"github.com/SrushtiQL/i4c/internal/core/substitute"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

type fakeRepo struct {
	mu        sync.Mutex
	recipes   map[string]recipeService.Recipe
	rows      map[string][]reform.IngredientRow
	finalized []recipeService.FinalizeRequest
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		recipes: map[string]recipeService.Recipe{
			"REC001": {ID: "rec1", FieldID: "REC001", Name: "Choco Spread", RegionFK: "US"},
		},
		rows: map[string][]reform.IngredientRow{
			"rec1": {
				reform.NewRow("ing-palm", "Choco Spread", "Palm Oil", "20 g", ""),
				reform.NewRow("ing-sugar", "Choco Spread", "Sugar", "30", "g"),
			},
		},
	}
}

func (f *fakeRepo) NextID(context.Context) recipeService.Allocation {
	return recipeService.Allocation{ID: "REC002"}
}

func (f *fakeRepo) FindByFieldID(_ context.Context, fieldID string) (*recipeService.Recipe, error) {
	rec, ok := f.recipes[fieldID]
	if !ok {
		return nil, common.Wrap(common.ErrNotFound, "recipe "+fieldID)
	}
	return &rec, nil
}

func (f *fakeRepo) LoadRows(_ context.Context, rec *recipeService.Recipe) ([]reform.IngredientRow, error) {
	return f.rows[rec.ID], nil
}

func (f *fakeRepo) ListCountries(context.Context) ([]recipeService.Country, error) {
	return []recipeService.Country{
		{ID: "c1", Name: "India", Code: "IN", Jurisdiction: compliance.India, ExplicitMatch: true},
	}, nil
}

func (f *fakeRepo) FindCountry(ctx context.Context, key string) (*recipeService.Country, error) {
	countries, _ := f.ListCountries(ctx)
	for i := range countries {
		if countries[i].Name == key {
			return &countries[i], nil
		}
	}
	return &recipeService.Country{Name: key, Jurisdiction: compliance.DefaultJurisdiction}, nil
}

func (f *fakeRepo) Finalize(_ context.Context, req recipeService.FinalizeRequest) (*recipeService.FinalizeResult, error) {
	if !reform.AllApproved(req.Rows) {
		return nil, common.ErrNotAllApproved
	}
	f.mu.Lock()
	f.finalized = append(f.finalized, req)
	f.mu.Unlock()
	return &recipeService.FinalizeResult{
		Recipe:      recipeService.Recipe{ID: "rec2", FieldID: "REC002", Name: req.Source.Name},
		Ingredients: recipeService.FinalIngredientNames(req.Rows),
	}, nil
}

type palmValidator struct{}

func (palmValidator) Validate(_ context.Context, names []string, _ compliance.Jurisdiction) ([]compliance.Decision, error) {
	out := make([]compliance.Decision, len(names))
	for i, n := range names {
		allowed := n != "Palm Oil"
		d := compliance.Decision{Name: n, Allowed: &allowed, Verdict: compliance.VerdictAllowed}
		if !allowed {
			d.Verdict = compliance.VerdictDenied
			d.Reason = "restricted fat"
		}
		out[i] = d
	}
	return out, nil
}

type palmLookup struct{}

func (palmLookup) Lookup(_ context.Context, _, ingredient string) (substitute.Suggestion, error) {
	if ingredient == "Palm Oil" {
		return substitute.Suggestion{Names: []string{"Coconut Oil"}, Reason: "Healthier fat profile"}, nil
	}
	return substitute.Suggestion{}, nil
}

type highScorer struct{}

func (highScorer) ScoreAll(_ context.Context, names []string) []scoring.Score {
	out := make([]scoring.Score, len(names))
	for i, n := range names {
		v := 0.9
		out[i] = scoring.Score{Name: n, Value: &v, Level: scoring.LevelHigh}
	}
	return out
}

type testServer struct {
	engine   *gin.Engine
	repo     *fakeRepo
	sessions *reform.SessionStore
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	repo := newFakeRepo()
	sessions := reform.NewSessionStore(time.Hour)
	h := NewHandler(repo, reform.NewOrchestrator(palmValidator{}, palmLookup{}, highScorer{}, 2), sessions)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/countries", h.ListCountries)
	api.GET("/recipes/next-id", h.NextRecipeID)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.PUT("/sessions/:id/selection", h.UpdateSelection)
	api.POST("/sessions/:id/formulate", h.Formulate)
	api.POST("/sessions/:id/rows/:row/scores", h.ScoreRow)
	api.POST("/sessions/:id/rows/:row/approve", h.ApproveRow)
	api.GET("/sessions/:id/ingredients", h.Ingredients)
	api.POST("/sessions/:id/finalize", h.Finalize)

	return &testServer{engine: r, repo: repo, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decode(t, w, &body)
	return body.Code
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"recipe_id": "REC001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view reform.View
	decode(t, w, &view)
	return view.ID
}

func TestReviewWorkflow(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	base := "/api/v1/sessions/" + id

	w := ts.do(t, http.MethodPost, base+"/formulate", gin.H{"country": "India", "entire_recipe": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var formulated FormulateResponse
	decode(t, w, &formulated)
	assert.Equal(t, compliance.India, formulated.Report.Jurisdiction)

	rows := map[string]reform.IngredientRow{}
	for _, r := range formulated.Session.Rows {
		rows[r.IngredientID] = r
	}
	palm := rows["ing-palm"]
	assert.True(t, palm.CurrentIngredientRestricted)
	require.Len(t, palm.Alternatives, 1)
	assert.Equal(t, "Coconut Oil", palm.Alternatives[0].Name)
	assert.Equal(t, 1, palm.SelectedAlternativeIndex)
	assert.Empty(t, rows["ing-sugar"].Alternatives)
	assert.Equal(t, reform.StatusPendingReview, rows["ing-sugar"].Status)

	// 受限食材不可保留
	w = ts.do(t, http.MethodPost, base+"/rows/ing-palm/approve", gin.H{"selected_index": 0})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.ErrCodeRestricted, errorCode(t, w))

	w = ts.do(t, http.MethodPost, base+"/rows/ing-palm/scores", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var scored reform.IngredientRow
	decode(t, w, &scored)
	assert.Equal(t, scoring.LevelHigh, scored.Alternatives[0].ScoreLevel)
	assert.Equal(t, reform.StateSuccess, scored.Alternatives[0].ScoreState)

	w = ts.do(t, http.MethodPost, base+"/rows/ing-palm/approve", gin.H{"selected_index": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved ApproveResponse
	decode(t, w, &approved)
	assert.Equal(t, reform.StatusReplaced, approved.Row.Status)
	assert.False(t, approved.AllApproved)

	w = ts.do(t, http.MethodPost, base+"/finalize", gin.H{"country": "India"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.ErrCodeNotAllApproved, errorCode(t, w))

	w = ts.do(t, http.MethodPost, base+"/rows/ing-sugar/approve", gin.H{"selected_index": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &approved)
	assert.Equal(t, reform.StatusUnchanged, approved.Row.Status)
	assert.True(t, approved.AllApproved)

	w = ts.do(t, http.MethodGet, base+"/ingredients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var final struct {
		Ingredients []string `json:"ingredients"`
		AllApproved bool     `json:"all_approved"`
	}
	decode(t, w, &final)
	assert.Equal(t, []string{"Coconut Oil", "Sugar"}, final.Ingredients)
	assert.True(t, final.AllApproved)

	w = ts.do(t, http.MethodPost, base+"/finalize", gin.H{"country": "India"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, ts.repo.finalized, 1)
	assert.Equal(t, "REC001", ts.repo.finalized[0].Source.FieldID)
	assert.Equal(t, "IN", ts.repo.finalized[0].Country.Code)

	// 完成後會話即結束
	w = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionUnknownRecipe(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"recipe_id": "REC999"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.ErrCodeNotFound, errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/sessions", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.ErrCodeInvalidRequest, errorCode(t, w))
}

func TestFormulateUsesSelection(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	base := "/api/v1/sessions/" + id

	// 沒有勾選也沒有指定食材
	w := ts.do(t, http.MethodPost, base+"/formulate", gin.H{"country": "India"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, base+"/selection", gin.H{"ingredient_ids": []string{"ing-sugar"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, base+"/formulate", gin.H{"country": "India"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp FormulateResponse
	decode(t, w, &resp)
	assert.Equal(t, []string{"ing-sugar"}, resp.Report.Updated)

	w = ts.do(t, http.MethodPut, base+"/selection", gin.H{"ingredient_ids": []string{"missing"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveValidation(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	base := "/api/v1/sessions/" + id

	w := ts.do(t, http.MethodPost, base+"/rows/ing-sugar/approve", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 尚未建議前不可核准
	w = ts.do(t, http.MethodPost, base+"/rows/ing-sugar/approve", gin.H{"selected_index": 0})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.ErrCodeInvalidTransition, errorCode(t, w))

	w = ts.do(t, http.MethodPost, base+"/rows/ing-sugar/scores", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, base+"/rows/nope/approve", gin.H{"selected_index": 0})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)

	w := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view reform.View
	decode(t, w, &view)
	assert.Equal(t, "Choco Spread", view.Recipe.Name)
	assert.Len(t, view.Rows, 2)
	assert.False(t, view.AllApproved)

	w = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, ts.sessions.Len())

	w = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCountriesAndNextID(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, http.MethodGet, "/api/v1/countries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"jurisdiction":"INDIA"`)

	w = ts.do(t, http.MethodGet, "/api/v1/recipes/next-id", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"REC002","needs_reconciliation":false}`, w.Body.String())
}
