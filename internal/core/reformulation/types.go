package reformulation

import (
	"github.com/SrushtiQL/i4c/internal/core/compliance"
	"github.com/SrushtiQL/i4c/internal/core/scoring"
)

// Status 食材列的審核狀態
type Status string

const (
	StatusNotStarted    Status = "Not Started"
	StatusPendingReview Status = "Pending Review"
	StatusReplaced      Status = "Replaced"
	StatusUnchanged     Status = "Unchanged"
)

// StatusState 狀態的提示等級
type StatusState string

const (
	StateNone    StatusState = "None"
	StateWarning StatusState = "Warning"
	StateSuccess StatusState = "Success"
	StateError   StatusState = "Error"
)

// ComplianceStatus 候選食材的驗證狀態
type ComplianceStatus string

const (
	ComplianceNotValidated ComplianceStatus = "not_validated"
	ComplianceCompliant    ComplianceStatus = "compliant"
)

// Candidate 替代食材候選
type Candidate struct {
	Name                string           `json:"name"`
	Justification       string           `json:"justification"`
	ComplianceStatus    ComplianceStatus `json:"compliance_status"`
	ComplianceReason    string           `json:"compliance_reason,omitempty"`
	RegulationReference string           `json:"regulation_reference"`
	Score               *float64         `json:"score,omitempty"`
	ScorePercentage     *float64         `json:"score_percentage,omitempty"`
	ScoreLevel          scoring.Level    `json:"score_level,omitempty"`
	ScoreState          StatusState      `json:"score_state,omitempty"`
}

// IngredientRow 配方中的一列食材
type IngredientRow struct {
	IngredientID       string  `json:"ingredient_id"`
	ProductName        string  `json:"product_name"`
	CurrentIngredient  string  `json:"current_ingredient"`
	OriginalIngredient string  `json:"original_ingredient,omitempty"`
	CurrentQuantity    string  `json:"current_quantity"`
	CurrentUnit        string  `json:"current_unit"`
	FunctionalRole     string  `json:"functional_role,omitempty"`
	Cost               float64 `json:"cost"`
	Availability       string  `json:"availability"`

	AlternativeIngredient string `json:"alternative_ingredient,omitempty"`
	AlternativeQuantity   string `json:"alternative_quantity,omitempty"`
	AlternativeUnit       string `json:"alternative_unit,omitempty"`

	Alternatives             []Candidate `json:"alternatives"`
	SelectedAlternativeIndex int         `json:"selected_alternative_index"`

	Status      Status      `json:"status"`
	StatusState StatusState `json:"status_state"`

	CurrentIngredientRestricted   bool                    `json:"current_ingredient_restricted"`
	CurrentIngredientInconclusive bool                    `json:"current_ingredient_inconclusive,omitempty"`
	ComplianceReason              string                  `json:"compliance_reason,omitempty"`
	RegulationReference           string                  `json:"regulation_reference,omitempty"`
	Jurisdiction                  compliance.Jurisdiction `json:"jurisdiction,omitempty"`

	Version uint64 `json:"version"`
}

// NewRow 建立尚未開始審核的食材列
func NewRow(id, product, name, quantity, unit string) IngredientRow {
	return IngredientRow{
		IngredientID:      id,
		ProductName:       product,
		CurrentIngredient: name,
		CurrentQuantity:   quantity,
		CurrentUnit:       unit,
		Alternatives:      []Candidate{},
		Status:            StatusNotStarted,
		StatusState:       StateNone,
	}
}

// Unresolvable 目前食材受限且沒有任何合規替代
func (r *IngredientRow) Unresolvable() bool {
	return r.CurrentIngredientRestricted && len(r.Alternatives) == 0
}

// FinalName 標籤使用的食材名稱
func (r *IngredientRow) FinalName() string {
	if r.Status == StatusReplaced && r.AlternativeIngredient != "" {
		return r.AlternativeIngredient
	}
	return r.CurrentIngredient
}

// ChosenCandidate 已選定的替代候選，未替換時回傳 nil
func (r *IngredientRow) ChosenCandidate() *Candidate {
	if r.Status != StatusReplaced {
		return nil
	}
	i := r.SelectedAlternativeIndex - 1
	if i < 0 || i >= len(r.Alternatives) {
		return nil
	}
	return &r.Alternatives[i]
}

func (r IngredientRow) clone() IngredientRow {
	c := r
	c.Alternatives = append([]Candidate(nil), r.Alternatives...)
	if c.Alternatives == nil {
		c.Alternatives = []Candidate{}
	}
	return c
}
