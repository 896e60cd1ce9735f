package records

import (
	"context"
	"strings"

	"oblik/core/store"
	"oblik/core/utils"
)

// InvestigationRequest is the payload of one service-investigation action.
// Only the fields the action reads are inspected.
type InvestigationRequest struct {
	Action       string
	ReviewResult string

	OrderNumber string
	OrderDate   string

	Penalties              []store.PenaltyDecision
	LegacyPenalty          *LegacyPenalty
	OfficerIDs             []string
	ConclusionApprovedDate string
	PenaltyOrderNumber     string
	PenaltyOrderDate       string
}

func (s *Service) InvestigationAction(ctx context.Context, actor Actor, id string, req InvestigationRequest) (rec *store.Record, err error) {
	action := strings.ToUpper(strings.TrimSpace(req.Action))
	if _, ok := investigationActions[action]; !ok {
		defer s.track("investigation_unknown", &err)
		return nil, invalid("action", "unknown")
	}
	defer s.track("investigation_"+strings.ToLower(action), &err)
	rec, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.RecordType != TypeServiceInvestigation {
		return nil, invalid("recordType", "not_service_investigation")
	}
	current := rec.Investigation.Stage
	if current == "" {
		current = StageReportReview
	}
	edge, ok := nextStage(current, action)
	if !ok {
		return nil, &InvalidStateError{Action: action, State: current}
	}

	inv := &rec.Investigation
	now := s.nowPtr()
	switch action {
	case ActionCloseNoViolation:
		if v := strings.TrimSpace(req.ReviewResult); v != "" {
			inv.ReviewResult = v
		}
		inv.FinalResult = ResultLawful
		inv.CompletedAt = now
		clearOrder(inv)
		clearPenalty(inv)
		rec.ResolutionDate = now
	case ActionInitiateSR:
		if v := strings.TrimSpace(req.ReviewResult); v != "" {
			inv.ReviewResult = v
		}
		inv.InitiatedAt = now
		clearFinal(inv)
		clearPenalty(inv)
	case ActionSetOrder:
		number := strings.TrimSpace(req.OrderNumber)
		if number == "" {
			return nil, invalid("orderNumber", "required")
		}
		if strings.TrimSpace(req.OrderDate) == "" {
			return nil, invalid("orderDate", "required")
		}
		orderDate, err := utils.ParseDate(req.OrderDate)
		if err != nil {
			return nil, invalid("orderDate", "format")
		}
		inv.OrderNumber = number
		inv.OrderDate = &orderDate
		inv.OrderAssignedAt = now
		deadline := ComputeDeadline(orderDate, s.opts.TermDays)
		rec.Deadline = &deadline
		clearFinal(inv)
		clearPenalty(inv)
	case ActionCompleteLawful:
		if v := strings.TrimSpace(req.ConclusionApprovedDate); v != "" {
			d, err := utils.ParseDate(v)
			if err != nil {
				return nil, invalid("conclusionApprovedDate", "format")
			}
			inv.ConclusionApprovedAt = &d
		}
		inv.FinalResult = ResultLawful
		inv.CompletedAt = now
		clearPenalty(inv)
		rec.ResolutionDate = now
	case ActionCompleteUnlawful:
		items := NormalizePenalties(penaltiesFromRequest(req.Penalties, req.LegacyPenalty))
		outcome, err := validatePenalties(penaltyRequest{
			items:            items,
			selectedOfficers: req.OfficerIDs,
			conclusionDate:   req.ConclusionApprovedDate,
			orderNumber:      req.PenaltyOrderNumber,
			orderDate:        req.PenaltyOrderDate,
		})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(items)+len(req.OfficerIDs))
		for _, item := range items {
			ids = append(ids, item.OfficerID)
		}
		ids = append(ids, req.OfficerIDs...)
		officers, err := s.ensureOfficers(ctx, ids)
		if err != nil {
			return nil, err
		}
		inv.FinalResult = ResultUnlawful
		inv.CompletedAt = now
		conclusion := outcome.ConclusionApprovedAt
		inv.ConclusionApprovedAt = &conclusion
		applyPenaltyOutcome(inv, outcome)
		rec.OfficerIDs = uniqueIDs(ids)
		rec.Resolution = BuildPenaltyNarrative(outcome, officers)
		rec.ResolutionDate = now
	}

	inv.Stage = edge.to
	rec.Status = edge.status
	if edge.status == StatusProcessed {
		rec.ProcessedAt = now
	} else {
		rec.ProcessedAt = nil
	}
	rec.UpdatedBy = actor.ID
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	meta := map[string]any{"action": action, "from": current, "to": edge.to}
	if action == ActionCompleteUnlawful {
		meta["penalties"] = len(inv.PenaltyItems)
		meta["by_article13"] = inv.PenaltyByArticle13
	}
	s.audit(ctx, actor, auditInvestigation, rec, meta)
	return rec, nil
}

func clearOrder(inv *store.Investigation) {
	inv.OrderNumber = ""
	inv.OrderDate = nil
	inv.OrderAssignedAt = nil
}

func clearFinal(inv *store.Investigation) {
	inv.FinalResult = ""
	inv.CompletedAt = nil
	inv.ConclusionApprovedAt = nil
}
