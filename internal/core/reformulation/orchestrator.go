package reformulation

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/SrushtiQL/i4c/internal/core/compliance"
	"github.com/SrushtiQL/i4c/internal/core/scoring"
	"github.com/SrushtiQL/i4c/internal/core/substitute"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

// Validator 批次法規驗證
type Validator interface {
	Validate(ctx context.Context, names []string, j compliance.Jurisdiction) ([]compliance.Decision, error)
}

// SubstituteLookup 替代食材來源
type SubstituteLookup interface {
	Lookup(ctx context.Context, product, ingredient string) (substitute.Suggestion, error)
}

// Scorer 並行評分
type Scorer interface {
	ScoreAll(ctx context.Context, names []string) []scoring.Score
}

// Finding 需要人工追蹤的驗證結果
type Finding struct {
	IngredientID string `json:"ingredient_id"`
	Name         string `json:"name"`
	Role         string `json:"role"` // current | candidate
	Code         string `json:"code"`
	Reason       string `json:"reason,omitempty"`
}

// Report 一次配方建議的結果摘要
type Report struct {
	Jurisdiction         compliance.Jurisdiction `json:"jurisdiction"`
	Updated              []string                `json:"updated"`
	RestrictedCurrent    []string                `json:"restricted_current"`
	CandidatesFetched    int                     `json:"candidates_fetched"`
	Compliant            int                     `json:"compliant"`
	RestrictedCandidates []string                `json:"restricted_candidates"`
	Inconclusive         []Finding               `json:"inconclusive"`
	Unresolvable         []string                `json:"unresolvable"`
	Stale                []string                `json:"stale"`
	AllApproved          bool                    `json:"all_approved"`
	Message              string                  `json:"message"`
}

// Orchestrator 配方建議流程：查詢替代、批次驗證、篩選並寫回
type Orchestrator struct {
	validator         Validator
	lookup            SubstituteLookup
	scorer            Scorer
	lookupConcurrency int
}

// NewOrchestrator 創建流程協調器
func NewOrchestrator(validator Validator, lookup SubstituteLookup, scorer Scorer, lookupConcurrency int) *Orchestrator {
	if lookupConcurrency <= 0 {
		lookupConcurrency = 1
	}
	return &Orchestrator{
		validator:         validator,
		lookup:            lookup,
		scorer:            scorer,
		lookupConcurrency: lookupConcurrency,
	}
}

// FormulateEntireRecipe 勾選全部食材後執行配方建議
func (o *Orchestrator) FormulateEntireRecipe(ctx context.Context, s *Session, j compliance.Jurisdiction) (*Report, error) {
	return o.Formulate(ctx, s, s.SelectAll(), j)
}

// Formulate 對指定列（空值時使用目前勾選）執行配方建議。
// 目前食材驗證失敗或候選驗證失敗時整體中止，不寫回任何列。
func (o *Orchestrator) Formulate(ctx context.Context, s *Session, rowIDs []string, j compliance.Jurisdiction) (*Report, error) {
	if len(rowIDs) == 0 {
		rowIDs = s.Selection()
	}
	if len(rowIDs) == 0 {
		return nil, common.Wrap(common.ErrInvalidRequest, "未選擇任何食材")
	}

	rows, err := s.snapshot(rowIDs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	common.LogInfo("開始配方建議",
		zap.String("session", s.ID),
		zap.String("jurisdiction", string(j)),
		zap.Int("rows", len(rows)),
	)

	candidates := o.fetchCandidates(ctx, s.Recipe.Name, rows)

	// 目前食材：單次批次驗證
	currentNames := make([]string, 0, len(rows))
	for i := range rows {
		currentNames = append(currentNames, rows[i].CurrentIngredient)
	}
	currentDecisions, err := o.validate(ctx, uniqueNames(currentNames), j)
	if err != nil {
		common.LogError("目前食材驗證失敗", zap.String("session", s.ID), zap.Error(err))
		return nil, err
	}

	// 候選食材：彙整後單次批次驗證，沒有候選則略過
	var candidateNames []string
	for _, list := range candidates {
		for _, c := range list {
			candidateNames = append(candidateNames, c.Name)
		}
	}
	candidateDecisions, err := o.validate(ctx, uniqueNames(candidateNames), j)
	if err != nil {
		common.LogError("替代食材驗證失敗", zap.String("session", s.ID), zap.Error(err))
		return nil, err
	}

	report := &Report{
		Jurisdiction:         j,
		Updated:              []string{},
		RestrictedCurrent:    []string{},
		RestrictedCandidates: []string{},
		Inconclusive:         []Finding{},
		Unresolvable:         []string{},
		Stale:                []string{},
		CandidatesFetched:    len(candidateNames),
	}
	restrictedSeen := make(map[string]bool)

	updates := make([]rowUpdate, 0, len(rows))
	for i := range rows {
		row := rows[i]
		base := row.Version

		d, ok := currentDecisions[row.CurrentIngredient]
		row.Jurisdiction = j
		row.CurrentIngredientRestricted = ok && d.Verdict == compliance.VerdictDenied
		row.CurrentIngredientInconclusive = ok && d.Verdict == compliance.VerdictInconclusive
		row.ComplianceReason = d.Reason
		row.RegulationReference = d.Reference
		if row.CurrentIngredientRestricted {
			report.RestrictedCurrent = append(report.RestrictedCurrent, row.IngredientID)
		}
		if row.CurrentIngredientInconclusive {
			report.Inconclusive = append(report.Inconclusive, Finding{
				IngredientID: row.IngredientID,
				Name:         row.CurrentIngredient,
				Role:         "current",
				Code:         common.ErrCodeInconclusive,
				Reason:       d.Reason,
			})
		}

		compliant := make([]Candidate, 0, len(candidates[i]))
		for _, c := range candidates[i] {
			cd := candidateDecisions[c.Name]
			switch cd.Verdict {
			case compliance.VerdictAllowed:
				c.ComplianceStatus = ComplianceCompliant
				c.ComplianceReason = cd.Reason
				c.RegulationReference = cd.Reference
				compliant = append(compliant, c)
			case compliance.VerdictDenied:
				if !restrictedSeen[c.Name] {
					restrictedSeen[c.Name] = true
					report.RestrictedCandidates = append(report.RestrictedCandidates, c.Name)
				}
			default:
				report.Inconclusive = append(report.Inconclusive, Finding{
					IngredientID: row.IngredientID,
					Name:         c.Name,
					Role:         "candidate",
					Code:         common.ErrCodeInconclusive,
					Reason:       cd.Reason,
				})
			}
		}
		report.Compliant += len(compliant)

		row.resetForReview(compliant)
		if row.Unresolvable() {
			report.Unresolvable = append(report.Unresolvable, row.IngredientID)
		}
		updates = append(updates, rowUpdate{base: base, row: row})
	}

	committed, stale := s.commit(updates)
	report.Updated = append(report.Updated, committed...)
	report.Stale = append(report.Stale, stale...)
	report.AllApproved = s.AllApproved()
	report.Message = fmt.Sprintf("%d 項食材待審核，%d 項目前食材受限，共 %d 個合規替代食材",
		len(committed), len(report.RestrictedCurrent), report.Compliant)

	common.LogInfo("配方建議完成",
		zap.String("session", s.ID),
		zap.Int("updated", len(committed)),
		zap.Int("stale", len(stale)),
		zap.Int("restricted", len(report.RestrictedCurrent)),
		zap.Int("unresolvable", len(report.Unresolvable)),
		zap.Int("inconclusive", len(report.Inconclusive)),
		zap.Duration("耗時", time.Since(start)),
	)
	if len(stale) > 0 {
		common.LogWarn("部分食材在建議期間被修改，未寫回", zap.Strings("rows", stale))
	}
	return report, nil
}

// fetchCandidates 並行查詢每一列的替代食材；查詢失敗視為沒有候選
func (o *Orchestrator) fetchCandidates(ctx context.Context, product string, rows []IngredientRow) [][]Candidate {
	mapper := iter.Mapper[IngredientRow, []Candidate]{MaxGoroutines: o.lookupConcurrency}
	return mapper.Map(rows, func(row *IngredientRow) []Candidate {
		suggestion, err := o.lookup.Lookup(ctx, product, row.CurrentIngredient)
		if err != nil {
			common.LogWarn("替代食材查詢失敗",
				zap.String("ingredient", row.CurrentIngredient),
				zap.Error(err),
			)
			return nil
		}

		list := make([]Candidate, 0, len(suggestion.Names))
		for _, name := range suggestion.Names {
			reason := suggestion.Reason
			if reason == "" {
				reason = substitute.GenerateReason(row.Cost, row.Availability, name)
			}
			list = append(list, Candidate{
				Name:             name,
				Justification:    reason,
				ComplianceStatus: ComplianceNotValidated,
			})
		}
		return list
	})
}

func (o *Orchestrator) validate(ctx context.Context, names []string, j compliance.Jurisdiction) (map[string]compliance.Decision, error) {
	out := make(map[string]compliance.Decision, len(names))
	if len(names) == 0 {
		return out, nil
	}
	decisions, err := o.validator.Validate(ctx, names, j)
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		out[d.Name] = d
	}
	return out, nil
}

// ScoreAlternatives 對待審核列尚未取得分數的替代食材並行評分並寫回；先前失敗的候選會重新評分
func (o *Orchestrator) ScoreAlternatives(ctx context.Context, s *Session, rowID string) (IngredientRow, error) {
	row, err := s.Row(rowID)
	if err != nil {
		return IngredientRow{}, err
	}
	if row.Status != StatusPendingReview {
		return row, common.Wrap(common.ErrInvalidTransition,
			fmt.Sprintf("%s 狀態為 %s，無法評分", row.CurrentIngredient, row.Status))
	}

	var names []string
	for _, c := range row.Alternatives {
		if c.Score == nil {
			names = append(names, c.Name)
		}
	}
	if len(names) == 0 {
		return row, nil
	}

	scores := o.scorer.ScoreAll(ctx, names)
	byName := make(map[string]scoring.Score, len(scores))
	for _, sc := range scores {
		byName[sc.Name] = sc
	}

	return s.update(rowID, row.Version, func(r *IngredientRow) {
		for i := range r.Alternatives {
			sc, ok := byName[r.Alternatives[i].Name]
			if !ok {
				continue
			}
			r.Alternatives[i].Score = sc.Value
			r.Alternatives[i].ScorePercentage = sc.Percentage
			r.Alternatives[i].ScoreLevel = sc.Level
			r.Alternatives[i].ScoreState = StatusState(sc.Level.State())
		}
	})
}

// uniqueNames 去除重複名稱並保持順序
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
