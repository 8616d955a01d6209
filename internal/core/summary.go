package core

import "time"

// MemberStatement breaks a member's balance down by where it came from.
// Net = Paid - Share + Sent - Received, and equals the member's balance.
type MemberStatement struct {
	MemberID string
	Paid     Money // expenses paid on behalf of the group
	Share    Money // the member's own share of expenses
	Sent     Money // payments made to other members
	Received Money // payments received from other members
	Net      int64
}

// SettlementPlan is a proposed, not yet executed, list of transfers.
type SettlementPlan struct {
	GroupID   string
	Version   int64 // group version the plan was computed from
	Balances  Balances
	Transfers []Transfer
}

// Total is the amount of money the plan moves.
func (p SettlementPlan) Total() Money {
	var total int64
	for _, t := range p.Transfers {
		total += t.Amount.Cents
	}
	return Money{Cents: total}
}

// GroupReport is the exported view of a group's ledger at one version.
type GroupReport struct {
	GroupID     string
	GroupName   string
	Version     int64
	GeneratedAt time.Time
	Members     []Member
	Statements  []MemberStatement
	Transfers   []Transfer
}

// Audit actions.
const (
	AuditExpenseCreated         = "expense.created"
	AuditPaymentRecorded        = "payment.recorded"
	AuditSettlementExecuted     = "settlement.executed"
	AuditTemplateSaved          = "recurring.template_saved"
	AuditTemplateToggled        = "recurring.template_toggled"
	AuditOccurrenceMaterialized = "recurring.occurrence_materialized"
	AuditMemberAdded            = "member.added"
)

// AuditEntry is an append-only record of a write to a group.
type AuditEntry struct {
	ID      string
	GroupID string
	ActorID string
	Action  string
	Details string // JSON
	At      time.Time
}
