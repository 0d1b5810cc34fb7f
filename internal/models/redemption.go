package models

// ScanUse tags what kind of scan a redemption came from. Carried through to
// the result screen and the audit log; it does not change the protocol.
const (
	ScanUseTicket = "ticket"
	ScanUseBand   = "band"
)

// RedemptionOutcome is the terminal result of one scan attempt. Every
// validation failure is its own outcome so the UI can say exactly what
// happened instead of showing a generic error.
type RedemptionOutcome string

const (
	OutcomeRedeemed         RedemptionOutcome = "redeemed"
	OutcomeInvalidCode      RedemptionOutcome = "invalid_code"
	OutcomeUnknownUser      RedemptionOutcome = "unknown_user"
	OutcomeTicketNotFound   RedemptionOutcome = "ticket_not_found"
	OutcomePermissionDenied RedemptionOutcome = "permission_denied"
	OutcomeEventMismatch    RedemptionOutcome = "event_mismatch"
	OutcomeAlreadyRedeemed  RedemptionOutcome = "already_redeemed"
)

// RedemptionResult is what a scan attempt resolves to.
//
// Ticket is the snapshot read during validation, included whenever the ticket
// was found so the result screen can show zone, ticket number and prior use.
// ScannedBy is set on AlreadyRedeemed and names who used the ticket first.
type RedemptionResult struct {
	Outcome   RedemptionOutcome `json:"outcome"`
	EventID   string            `json:"eventId"`
	Code      string            `json:"code,omitempty"`
	ScanUse   string            `json:"scanUse"`
	Ticket    *Ticket           `json:"ticket,omitempty"`
	ScannedBy string            `json:"scannedBy,omitempty"`
}

// Redeemed reports whether the scan marked the ticket used.
func (r *RedemptionResult) Redeemed() bool {
	return r.Outcome == OutcomeRedeemed
}
