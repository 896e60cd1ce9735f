package records

import (
	"context"
	"fmt"
	"strings"

	"oblik/core/notify"
	"oblik/core/store"
)

// ReturnForRevision rolls a record back one step. Service investigations move
// to the previous stage and lose the data of every later stage; other kinds
// go from APPROVAL or PROCESSED back to IN_PROGRESS.
func (s *Service) ReturnForRevision(ctx context.Context, actor Actor, id, comment string) (rec *store.Record, err error) {
	defer s.track("return_for_revision", &err)
	rec, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	meta := map[string]any{"comment": comment, "from_status": rec.Status}

	if rec.RecordType == TypeServiceInvestigation {
		inv := &rec.Investigation
		from := inv.Stage
		if from == "" {
			from = StageReportReview
		}
		target := revisionTarget(from)
		switch target {
		case StageReportReview:
			inv.ReviewResult = ""
			inv.InitiatedAt = nil
			clearOrder(inv)
		case StageSRInitiated:
			clearOrder(inv)
		}
		if isTerminalStage(from) {
			rec.Resolution = ""
		}
		clearFinal(inv)
		clearPenalty(inv)
		inv.Stage = target
		meta["from_stage"] = from
		meta["to_stage"] = target
	} else {
		if rec.Status != StatusApproval && rec.Status != StatusProcessed {
			return nil, &InvalidStateError{Action: "return_for_revision", State: rec.Status}
		}
	}
	rec.Status = StatusInProgress
	rec.ProcessedAt = nil
	rec.ResolutionDate = nil
	rec.UpdatedBy = actor.ID
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, auditReturnForRevision, rec, meta)
	if rec.AssignedUserID != nil {
		msg := fmt.Sprintf("Запис %s повернуто на доопрацювання.", rec.EONumber)
		if comment != "" {
			msg += " Коментар: " + comment
		}
		s.notify(ctx, notify.Notification{
			UserID:   *rec.AssignedUserID,
			Title:    "Повернуто на доопрацювання",
			Message:  msg,
			Type:     notify.TypeRevision,
			Priority: notify.PriorityHigh,
			Link:     s.recordLink(rec),
		})
	}
	return rec, nil
}
