package enums

// AuditAction names the operations recorded in the audit log.
type AuditAction string

const (
	AuditOrderTransition AuditAction = "order.transition"
	AuditWinnerDecision  AuditAction = "order.winner_decision"
	AuditCreditReserve   AuditAction = "credit.reserve"
	AuditCreditRelease   AuditAction = "credit.release"
	AuditCreditConvert   AuditAction = "credit.convert_to_debit"
	AuditCreditReverse   AuditAction = "credit.reverse"
	AuditStockAuditFlag  AuditAction = "stock.audit_flag"
)
