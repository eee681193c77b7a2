package reformulation

import (
	"fmt"

	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// Approve 操作員選擇：0 保留目前食材，1..N 選用對應替代食材。
// 僅允許從 Pending Review 轉換；受限食材不可保留，且無替代時整列無法處理。
func (r *IngredientRow) Approve(index int) error {
	if r.Status != StatusPendingReview {
		return common.Wrap(common.ErrInvalidTransition,
			fmt.Sprintf("%s 狀態為 %s，需先完成配方建議", r.CurrentIngredient, r.Status))
	}
	if r.Unresolvable() {
		return common.Wrap(common.ErrUnresolvableRow, r.CurrentIngredient)
	}
	if index < 0 || index > len(r.Alternatives) {
		return common.Wrap(common.ErrInvalidRequest,
			fmt.Sprintf("selected_index %d 超出範圍 0..%d", index, len(r.Alternatives)))
	}
	if index == 0 && r.CurrentIngredientRestricted {
		return common.Wrap(common.ErrRestricted, r.CurrentIngredient)
	}

	r.SelectedAlternativeIndex = index
	r.AlternativeQuantity = r.CurrentQuantity
	r.AlternativeUnit = r.CurrentUnit
	if index == 0 {
		r.Status = StatusUnchanged
		r.StatusState = StateNone
		r.AlternativeIngredient = r.CurrentIngredient
	} else {
		r.Status = StatusReplaced
		r.StatusState = StateSuccess
		r.AlternativeIngredient = r.Alternatives[index-1].Name
	}
	r.Version++
	return nil
}

// resetForReview 新一輪配方建議，覆寫先前的終態
func (r *IngredientRow) resetForReview(alternatives []Candidate) {
	if alternatives == nil {
		alternatives = []Candidate{}
	}
	r.Alternatives = alternatives
	r.Status = StatusPendingReview
	r.StatusState = StateWarning
	r.AlternativeIngredient = ""
	r.AlternativeQuantity = ""
	r.AlternativeUnit = ""
	r.SelectedAlternativeIndex = 0
	if r.CurrentIngredientRestricted && len(alternatives) > 0 {
		r.SelectedAlternativeIndex = 1
	}
	r.Version++
}

// AllApproved 所有食材皆為 Replaced 或 Unchanged；空清單視為未核准
func AllApproved(rows []IngredientRow) bool {
	if len(rows) == 0 {
		return false
	}
	for i := range rows {
		if rows[i].Status != StatusReplaced && rows[i].Status != StatusUnchanged {
			return false
		}
	}
	return true
}
