package dto

import "golang-news-trader/internal/entity"

// Signal is a directional recommendation produced by the classification pipeline.
type Signal struct {
	Symbol     string           `json:"symbol" validate:"required,max=16"`
	Direction  entity.Direction `json:"direction" validate:"required,oneof=buy sell hold"`
	Confidence float64          `json:"confidence" validate:"gte=0,lte=1"`
	Reason     string           `json:"reason"`
}

type SignalOutcome string

const (
	SignalAccepted       SignalOutcome = "accepted"
	SignalRejected       SignalOutcome = "rejected"
	SignalAdjusted       SignalOutcome = "adjusted"
	SignalConsensusLost  SignalOutcome = "consensus_lost"
	SignalSubmitFailed   SignalOutcome = "submit_failed"
	SignalNoActionNeeded SignalOutcome = "no_action"
)

// SignalResult reports what handling a signal did.
type SignalResult struct {
	Outcome      SignalOutcome `json:"outcome"`
	RejectReason RejectReason  `json:"reject_reason,omitempty"`
	TradeID      uint          `json:"trade_id,omitempty"`
	AnalysisID   uint          `json:"analysis_id,omitempty"`
	Message      string        `json:"message,omitempty"`
}
