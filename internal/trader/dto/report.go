package dto

import "golang-news-trader/internal/entity"

type ReconcileAction string

const (
	ActionCollapsedDuplicate ReconcileAction = "collapsed_duplicate"
	ActionLinkedCompany      ReconcileAction = "linked_company"
	ActionBrokerClose        ReconcileAction = "broker_close"
	ActionMarkedClosed       ReconcileAction = "marked_closed"
	ActionDeletedOrphan      ReconcileAction = "deleted_orphan"
	ActionCreatedFromBroker  ReconcileAction = "created_from_broker"
	ActionAdoptedFill        ReconcileAction = "adopted_fill"
	ActionClosedMissing      ReconcileAction = "closed_missing"
)

// Correction is one record the reconciliation engine changed (or would change in dry-run).
type Correction struct {
	Action  ReconcileAction    `json:"action"`
	TradeID uint               `json:"trade_id,omitempty"`
	Symbol  string             `json:"symbol"`
	From    entity.TradeStatus `json:"from,omitempty"`
	To      entity.TradeStatus `json:"to,omitempty"`
	Detail  string             `json:"detail,omitempty"`
}

type ReconcileReport struct {
	DryRun      bool         `json:"dry_run"`
	Corrections []Correction `json:"corrections"`
	Errors      []string     `json:"errors,omitempty"`
}

func (r *ReconcileReport) Add(c Correction) {
	r.Corrections = append(r.Corrections, c)
}

func (r *ReconcileReport) Merge(other ReconcileReport) {
	r.Corrections = append(r.Corrections, other.Corrections...)
	r.Errors = append(r.Errors, other.Errors...)
}

func (r ReconcileReport) Changed() int {
	return len(r.Corrections)
}

type MonitorReport struct {
	Checked   int      `json:"checked"`
	Skipped   int      `json:"skipped"`
	Triggered int      `json:"triggered"`
	Failed    int      `json:"failed"`
	TradeIDs  []uint   `json:"trade_ids,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

type OrderSyncReport struct {
	Checked int      `json:"checked"`
	Opened  int      `json:"opened"`
	Closed  int      `json:"closed"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
