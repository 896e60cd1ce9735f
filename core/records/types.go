package records

const (
	TypeEO                   = "EO"
	TypeZvern                = "ZVERN"
	TypeApplication          = "APPLICATION"
	TypeDetentionProtocol    = "DETENTION_PROTOCOL"
	TypeServiceInvestigation = "SERVICE_INVESTIGATION"
)

const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusApproval   = "APPROVAL"
	StatusProcessed  = "PROCESSED"
)

const (
	ExtensionPending  = "PENDING"
	ExtensionApproved = "APPROVED"
	ExtensionRejected = "REJECTED"
)

const (
	StageReportReview              = "REPORT_REVIEW"
	StageSRInitiated               = "SR_INITIATED"
	StageSROrderAssigned           = "SR_ORDER_ASSIGNED"
	StageSRCompletedLawful         = "SR_COMPLETED_LAWFUL"
	StageSRCompletedUnlawful       = "SR_COMPLETED_UNLAWFUL"
	StageCheckCompletedNoViolation = "CHECK_COMPLETED_NO_VIOLATION"
)

const (
	ResultLawful   = "LAWFUL"
	ResultUnlawful = "UNLAWFUL"
)

const (
	ActionCloseNoViolation = "CLOSE_NO_VIOLATION"
	ActionInitiateSR       = "INITIATE_SR"
	ActionSetOrder         = "SET_ORDER"
	ActionCompleteLawful   = "COMPLETE_LAWFUL"
	ActionCompleteUnlawful = "COMPLETE_UNLAWFUL"
)

var recordTypes = map[string]struct{}{
	TypeEO:                   {},
	TypeZvern:                {},
	TypeApplication:          {},
	TypeDetentionProtocol:    {},
	TypeServiceInvestigation: {},
}

func IsRecordType(v string) bool {
	_, ok := recordTypes[v]
	return ok
}

type stageEdge struct {
	to     string
	status string
}

// investigationGraph maps current stage -> action -> edge. Stages missing
// from the outer map accept no actions.
var investigationGraph = map[string]map[string]stageEdge{
	StageReportReview: {
		ActionCloseNoViolation: {to: StageCheckCompletedNoViolation, status: StatusProcessed},
		ActionInitiateSR:       {to: StageSRInitiated, status: StatusInProgress},
	},
	StageSRInitiated: {
		ActionSetOrder: {to: StageSROrderAssigned, status: StatusInProgress},
	},
	StageSROrderAssigned: {
		ActionCompleteLawful:   {to: StageSRCompletedLawful, status: StatusProcessed},
		ActionCompleteUnlawful: {to: StageSRCompletedUnlawful, status: StatusProcessed},
	},
}

var investigationActions = map[string]struct{}{
	ActionCloseNoViolation: {},
	ActionInitiateSR:       {},
	ActionSetOrder:         {},
	ActionCompleteLawful:   {},
	ActionCompleteUnlawful: {},
}

func nextStage(current, action string) (stageEdge, bool) {
	if current == "" {
		current = StageReportReview
	}
	edge, ok := investigationGraph[current][action]
	return edge, ok
}

func isTerminalStage(stage string) bool {
	switch stage {
	case StageSRCompletedLawful, StageSRCompletedUnlawful, StageCheckCompletedNoViolation:
		return true
	}
	return false
}

// revisionTarget is the single-step rollback for a stage.
func revisionTarget(current string) string {
	switch current {
	case StageSRCompletedLawful, StageSRCompletedUnlawful:
		return StageSROrderAssigned
	case StageCheckCompletedNoViolation:
		return StageReportReview
	case StageSROrderAssigned:
		return StageSRInitiated
	default:
		return StageReportReview
	}
}
