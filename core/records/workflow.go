package records

import (
	"context"
	"fmt"
	"strings"

	"oblik/core/notify"
	"oblik/core/store"
	"oblik/core/utils"
)

type ResolutionInput struct {
	Resolution  string
	OfficerIDs  []string
	ConcernsBPP bool
}

// SubmitResolution stores the resolution of a general record and sends it to
// approval. A record that is already PROCESSED stays PROCESSED.
func (s *Service) SubmitResolution(ctx context.Context, actor Actor, id string, in ResolutionInput) (rec *store.Record, err error) {
	defer s.track("submit_resolution", &err)
	rec, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.RecordType == TypeServiceInvestigation {
		return nil, invalid("recordType", "use_investigation_actions")
	}
	if _, err := s.ensureOfficers(ctx, in.OfficerIDs); err != nil {
		return nil, err
	}
	rec.Resolution = strings.TrimSpace(in.Resolution)
	rec.ResolutionDate = s.nowPtr()
	rec.OfficerIDs = uniqueIDs(in.OfficerIDs)
	rec.ConcernsBPP = in.ConcernsBPP
	if rec.Status != StatusProcessed {
		rec.Status = StatusApproval
		rec.ProcessedAt = nil
	}
	rec.UpdatedBy = actor.ID
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, auditResolution, rec, map[string]any{"status": rec.Status, "officers": len(rec.OfficerIDs)})
	return rec, nil
}

func (s *Service) Approve(ctx context.Context, actor Actor, id string) (rec *store.Record, err error) {
	defer s.track("approve", &err)
	rec, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusApproval {
		return nil, &InvalidStateError{Action: "approve", State: rec.Status}
	}
	rec.Status = StatusProcessed
	rec.ProcessedAt = s.nowPtr()
	rec.UpdatedBy = actor.ID
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, auditApprove, rec, nil)
	return rec, nil
}

// RequestExtension marks an extension as pending in any status.
func (s *Service) RequestExtension(ctx context.Context, actor Actor, id, reason string) (rec *store.Record, err error) {
	defer s.track("request_extension", &err)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "required")
	}
	rec, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.ExtensionStatus = ExtensionPending
	rec.ExtensionReason = reason
	rec.UpdatedBy = actor.ID
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, auditExtensionRequest, rec, map[string]any{"reason": reason})
	return rec, nil
}

// ReviewExtension resolves an extension request. Approval chains another term
// starting from the current deadline.
func (s *Service) ReviewExtension(ctx context.Context, actor Actor, id string, approved bool) (rec *store.Record, err error) {
	defer s.track("review_extension", &err)
	rec, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := rec.Deadline
	if approved {
		rec.ExtensionStatus = ExtensionApproved
		if rec.Deadline != nil {
			d := ComputeDeadline(*rec.Deadline, s.opts.TermDays)
			rec.Deadline = &d
		}
	} else {
		rec.ExtensionStatus = ExtensionRejected
	}
	rec.UpdatedBy = actor.ID
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	meta := map[string]any{"approved": approved}
	if previous != nil {
		meta["previous_deadline"] = utils.FormatDate(*previous)
	}
	if rec.Deadline != nil {
		meta["deadline"] = utils.FormatDate(*rec.Deadline)
	}
	s.audit(ctx, actor, auditExtensionReview, rec, meta)
	if rec.AssignedUserID != nil {
		verdict := "відхилено"
		if approved {
			verdict = "погоджено"
		}
		msg := fmt.Sprintf("Продовження строку по запису %s %s.", rec.EONumber, verdict)
		if rec.Deadline != nil {
			msg += fmt.Sprintf(" Строк виконання: %s.", utils.FormatDate(*rec.Deadline))
		}
		s.notify(ctx, notify.Notification{
			UserID:   *rec.AssignedUserID,
			Title:    "Розглянуто запит на продовження строку",
			Message:  msg,
			Type:     notify.TypeExtensionReview,
			Priority: notify.PriorityNormal,
			Link:     s.recordLink(rec),
		})
	}
	return rec, nil
}
