package records

import (
	"fmt"
	"strings"
	"time"

	"oblik/core/store"
	"oblik/core/utils"
)

const (
	DecisionArticle13       = "ARTICLE_13"
	DecisionArticle19Part11 = "ARTICLE_19_PART_11"
	DecisionArticle19Part13 = "ARTICLE_19_PART_13"
)

const (
	PenaltyTextPart11  = "попереджено про необхідність дотримання службової дисципліни"
	PenaltyTextPart13  = "обмеженося раніше застосованим дисциплінарним стягненням"
	PenaltyOtherOption = "інший варіант"
)

var decisionLabels = map[string]string{
	DecisionArticle13:       "ст. 13 Дисциплінарного статуту НПУ",
	DecisionArticle19Part11: "ч. 11 ст. 19 Дисциплінарного статуту НПУ",
	DecisionArticle19Part13: "ч. 13 ст. 19 Дисциплінарного статуту НПУ",
}

// LegacyPenalty is the single-officer shape older clients still send.
type LegacyPenalty struct {
	OfficerID   string `json:"penaltyOfficerId"`
	PenaltyType string `json:"penaltyType"`
	ByArticle13 bool   `json:"penaltyByArticle13"`
}

// InferDecisionType maps the legacy flag and free text to a decision type.
func InferDecisionType(penaltyType string, byArticle13 bool) string {
	if byArticle13 {
		return DecisionArticle13
	}
	text := strings.ToLower(penaltyType)
	switch {
	case strings.Contains(text, "обмеж"):
		return DecisionArticle19Part13
	case strings.Contains(text, "попереджено про необхідність"):
		return DecisionArticle19Part11
	default:
		return DecisionArticle13
	}
}

// NormalizePenalties canonicalizes decisions: ids are trimmed, the decision
// type defaults to ARTICLE_13, the two article 19 types carry their fixed
// wording, and entries without an officer (or an ARTICLE_13 sanction) are
// dropped. Applying it twice yields the same list.
func NormalizePenalties(items []store.PenaltyDecision) []store.PenaltyDecision {
	out := make([]store.PenaltyDecision, 0, len(items))
	for _, item := range items {
		d := store.PenaltyDecision{
			OfficerID:    strings.TrimSpace(item.OfficerID),
			DecisionType: strings.ToUpper(strings.TrimSpace(item.DecisionType)),
		}
		if d.DecisionType == "" {
			d.DecisionType = DecisionArticle13
		}
		switch d.DecisionType {
		case DecisionArticle19Part11:
			d.PenaltyType = PenaltyTextPart11
		case DecisionArticle19Part13:
			d.PenaltyType = PenaltyTextPart13
		default:
			d.PenaltyType = strings.TrimSpace(item.PenaltyType)
			d.PenaltyOther = strings.TrimSpace(item.PenaltyOther)
		}
		if d.OfficerID == "" {
			continue
		}
		if d.DecisionType == DecisionArticle13 && d.PenaltyType == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// penaltiesFromRequest folds the legacy single-officer fields into a list
// when no list was sent.
func penaltiesFromRequest(items []store.PenaltyDecision, legacy *LegacyPenalty) []store.PenaltyDecision {
	if len(items) > 0 || legacy == nil || strings.TrimSpace(legacy.OfficerID) == "" {
		return items
	}
	decision := InferDecisionType(legacy.PenaltyType, legacy.ByArticle13)
	return []store.PenaltyDecision{{
		OfficerID:    legacy.OfficerID,
		DecisionType: decision,
		PenaltyType:  legacy.PenaltyType,
	}}
}

// PenaltyOutcome is a validated COMPLETE_UNLAWFUL payload.
type PenaltyOutcome struct {
	Items                []store.PenaltyDecision
	ByArticle13          bool
	ConclusionApprovedAt time.Time
	OrderNumber          string
	OrderDate            *time.Time
}

type penaltyRequest struct {
	items            []store.PenaltyDecision
	selectedOfficers []string
	conclusionDate   string
	orderNumber      string
	orderDate        string
}

// validatePenalties expects a normalized list.
func validatePenalties(req penaltyRequest) (*PenaltyOutcome, error) {
	if len(req.items) == 0 {
		return nil, invalid("penaltyItems", "required")
	}
	seen := make(map[string]struct{}, len(req.items))
	byArticle13 := false
	for _, item := range req.items {
		if _, dup := seen[item.OfficerID]; dup {
			return nil, invalid("penaltyItems", "duplicate_officer")
		}
		seen[item.OfficerID] = struct{}{}
		if _, known := decisionLabels[item.DecisionType]; !known {
			return nil, invalid("penaltyItems.decisionType", "unknown")
		}
		if item.DecisionType != DecisionArticle13 {
			continue
		}
		byArticle13 = true
		if item.PenaltyType == "" {
			return nil, invalid("penaltyItems.penaltyType", "required")
		}
		if item.PenaltyType == PenaltyOtherOption && item.PenaltyOther == "" {
			return nil, invalid("penaltyItems.penaltyOther", "required")
		}
	}
	for _, raw := range req.selectedOfficers {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; !ok {
			return nil, invalid("officerIds", "missing_penalty")
		}
	}
	if strings.TrimSpace(req.conclusionDate) == "" {
		return nil, invalid("conclusionApprovedDate", "required")
	}
	conclusion, err := utils.ParseDate(req.conclusionDate)
	if err != nil {
		return nil, invalid("conclusionApprovedDate", "format")
	}
	out := &PenaltyOutcome{
		Items:                req.items,
		ByArticle13:          byArticle13,
		ConclusionApprovedAt: conclusion,
	}
	if !byArticle13 {
		return out, nil
	}
	out.OrderNumber = strings.TrimSpace(req.orderNumber)
	if out.OrderNumber == "" {
		return nil, invalid("penaltyOrderNumber", "required")
	}
	if strings.TrimSpace(req.orderDate) == "" {
		return nil, invalid("penaltyOrderDate", "required")
	}
	orderDate, err := utils.ParseDate(req.orderDate)
	if err != nil {
		return nil, invalid("penaltyOrderDate", "format")
	}
	out.OrderDate = &orderDate
	return out, nil
}

func officerLabel(o store.Officer) string {
	name := strings.TrimSpace(o.LastName + " " + o.FirstName)
	if badge := strings.TrimSpace(o.BadgeNumber); badge != "" {
		return fmt.Sprintf("%s (%s)", name, badge)
	}
	return name
}

func sanctionText(d store.PenaltyDecision) string {
	if d.DecisionType == DecisionArticle13 && d.PenaltyType == PenaltyOtherOption {
		return d.PenaltyOther
	}
	return d.PenaltyType
}

// BuildPenaltyNarrative renders the resolution text for an unlawful finding.
// officers must contain every id referenced by outcome.Items.
func BuildPenaltyNarrative(outcome *PenaltyOutcome, officers map[string]store.Officer) string {
	entries := make([]string, 0, len(outcome.Items))
	for _, item := range outcome.Items {
		label := item.OfficerID
		if o, ok := officers[item.OfficerID]; ok {
			label = officerLabel(o)
		}
		entries = append(entries, fmt.Sprintf("%s — %s (%s)", label, sanctionText(item), decisionLabels[item.DecisionType]))
	}
	parts := []string{
		"За результатами службового розслідування встановлено неправомірність дій поліцейських.",
		fmt.Sprintf("Висновок затверджено %s.", utils.FormatDate(outcome.ConclusionApprovedAt)),
		fmt.Sprintf("Застосовано: %s.", strings.Join(entries, "; ")),
	}
	if outcome.ByArticle13 && outcome.OrderDate != nil {
		parts = append(parts, fmt.Sprintf("Наказ № %s від %s.", outcome.OrderNumber, utils.FormatDate(*outcome.OrderDate)))
	} else {
		parts = append(parts, "Заходи застосовано без видання наказу.")
	}
	return strings.Join(parts, " ")
}

// applyPenaltyOutcome writes the list and its first-entry mirrors.
func applyPenaltyOutcome(inv *store.Investigation, outcome *PenaltyOutcome) {
	inv.PenaltyItems = outcome.Items
	inv.PenaltyByArticle13 = outcome.ByArticle13
	inv.PenaltyOrderNumber = outcome.OrderNumber
	inv.PenaltyOrderDate = outcome.OrderDate
	first := outcome.Items[0]
	inv.PenaltyOfficerID = first.OfficerID
	inv.PenaltyType = first.PenaltyType
	inv.PenaltyDecisionType = first.DecisionType
	inv.PenaltyOther = first.PenaltyOther
}

func clearPenalty(inv *store.Investigation) {
	inv.PenaltyItems = nil
	inv.PenaltyByArticle13 = false
	inv.PenaltyOrderNumber = ""
	inv.PenaltyOrderDate = nil
	inv.PenaltyOfficerID = ""
	inv.PenaltyType = ""
	inv.PenaltyDecisionType = ""
	inv.PenaltyOther = ""
}
