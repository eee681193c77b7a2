package reformulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// RecipeRef 審核中的來源配方
type RecipeRef struct {
	ID       string `json:"id"`
	FieldID  string `json:"field_id"`
	Name     string `json:"name"`
	RegionFK string `json:"region_fk,omitempty"`
}

// View 會話的唯讀快照
type View struct {
	ID          string          `json:"id"`
	Recipe      RecipeRef       `json:"recipe"`
	Rows        []IngredientRow `json:"rows"`
	Selection   []string        `json:"selection"`
	AllApproved bool            `json:"all_approved"`
}

// Session 單一配方的審核會話，所有食材列的修改都經過 mu
type Session struct {
	ID     string
	Recipe RecipeRef

	mu        sync.Mutex
	rows      []IngredientRow
	index     map[string]int
	selection []string
}

func newSession(id string, recipe RecipeRef, rows []IngredientRow) *Session {
	s := &Session{
		ID:     id,
		Recipe: recipe,
		rows:   make([]IngredientRow, len(rows)),
		index:  make(map[string]int, len(rows)),
	}
	for i, r := range rows {
		s.rows[i] = r.clone()
		s.index[r.IngredientID] = i
	}
	return s
}

// View 取得目前狀態
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]IngredientRow, len(s.rows))
	for i := range s.rows {
		rows[i] = s.rows[i].clone()
	}
	return View{
		ID:          s.ID,
		Recipe:      s.Recipe,
		Rows:        rows,
		Selection:   append([]string{}, s.selection...),
		AllApproved: AllApproved(s.rows),
	}
}

// Rows 食材列的副本
func (s *Session) Rows() []IngredientRow {
	return s.View().Rows
}

// Row 取得單一食材列
func (s *Session) Row(id string) (IngredientRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return IngredientRow{}, common.Wrap(common.ErrNotFound, "ingredient "+id)
	}
	return s.rows[i].clone(), nil
}

// AllApproved 目前的核准閘門
func (s *Session) AllApproved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AllApproved(s.rows)
}

// SetSelection 設定操作員勾選的食材列
func (s *Session) SetSelection(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.resolveLocked(ids)
	if err != nil {
		return err
	}
	s.selection = ids
	return nil
}

// Selection 目前勾選的食材列
func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.selection...)
}

// SelectAll 勾選所有食材列並回傳
func (s *Session) SelectAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selection = make([]string, len(s.rows))
	for i := range s.rows {
		s.selection[i] = s.rows[i].IngredientID
	}
	return append([]string{}, s.selection...)
}

// Approve 套用操作員決定，回傳更新後的列與核准閘門
func (s *Session) Approve(rowID string, index int) (IngredientRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[rowID]
	if !ok {
		return IngredientRow{}, false, common.Wrap(common.ErrNotFound, "ingredient "+rowID)
	}
	if err := s.rows[i].Approve(index); err != nil {
		return s.rows[i].clone(), AllApproved(s.rows), err
	}

	common.LogInfo("食材已核准",
		zap.String("session", s.ID),
		zap.String("ingredient", s.rows[i].CurrentIngredient),
		zap.String("status", string(s.rows[i].Status)),
		zap.String("final", s.rows[i].FinalName()),
	)
	return s.rows[i].clone(), AllApproved(s.rows), nil
}

func (s *Session) resolveLocked(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.index[id]; !ok {
			return nil, common.Wrap(common.ErrNotFound, "ingredient "+id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// snapshot 複製指定列，版本號供 commit 比對
func (s *Session) snapshot(ids []string) ([]IngredientRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.resolveLocked(ids)
	if err != nil {
		return nil, err
	}
	rows := make([]IngredientRow, len(ids))
	for i, id := range ids {
		rows[i] = s.rows[s.index[id]].clone()
	}
	return rows, nil
}

type rowUpdate struct {
	base uint64
	row  IngredientRow
}

// commit 只寫回自快照後未被修改的列並清除勾選，回傳被略過的列
func (s *Session) commit(updates []rowUpdate) (committed, stale []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		i := s.index[u.row.IngredientID]
		if s.rows[i].Version != u.base {
			stale = append(stale, u.row.IngredientID)
			continue
		}
		s.rows[i] = u.row
		committed = append(committed, u.row.IngredientID)
	}
	s.selection = nil
	return committed, stale
}

// update 在版本未變時套用 fn
func (s *Session) update(rowID string, base uint64, fn func(r *IngredientRow)) (IngredientRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[rowID]
	if !ok {
		return IngredientRow{}, common.Wrap(common.ErrNotFound, "ingredient "+rowID)
	}
	if s.rows[i].Version != base {
		return s.rows[i].clone(), common.Wrap(common.ErrConflict, fmt.Sprintf("ingredient %s 已被修改", rowID))
	}
	fn(&s.rows[i])
	s.rows[i].Version++
	return s.rows[i].clone(), nil
}

type storedSession struct {
	session    *Session
	lastAccess time.Time
}

// SessionStore 暫存審核會話，閒置超過 ttl 即失效
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*storedSession
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore 創建會話儲存
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*storedSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create 以載入的食材列建立會話
func (st *SessionStore) Create(recipe RecipeRef, rows []IngredientRow) *Session {
	s := newSession(common.GenerateUUID(), recipe, rows)

	st.mu.Lock()
	st.sessions[s.ID] = &storedSession{session: s, lastAccess: st.now()}
	st.mu.Unlock()

	common.LogInfo("建立審核會話",
		zap.String("session", s.ID),
		zap.String("recipe", recipe.FieldID),
		zap.Int("rows", len(rows)),
	)
	return s
}

// Get 取得會話並更新存取時間
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.sessions[id]
	if !ok {
		return nil, common.Wrap(common.ErrNotFound, "session "+id)
	}
	now := st.now()
	if st.expired(e, now) {
		delete(st.sessions, id)
		return nil, common.Wrap(common.ErrNotFound, "session "+id)
	}
	e.lastAccess = now
	return e.session, nil
}

// Delete 移除會話
func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; !ok {
		return common.Wrap(common.ErrNotFound, "session "+id)
	}
	delete(st.sessions, id)
	return nil
}

// Len 目前會話數
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep 清除過期會話
func (st *SessionStore) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	count := 0
	for id, e := range st.sessions {
		if st.expired(e, now) {
			delete(st.sessions, id)
			count++
		}
	}
	if count > 0 {
		common.LogInfo("清除過期會話", zap.Int("count", count), zap.Int("remaining", len(st.sessions)))
	}
	return count
}

// Run 定期清除過期會話直到 ctx 結束
func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (st *SessionStore) expired(e *storedSession, now time.Time) bool {
	return st.ttl > 0 && now.Sub(e.lastAccess) > st.ttl
}
