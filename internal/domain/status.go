package domain

// Status is an application status. The set is closed: only the constants below
// are valid.
type Status string

const (
	StatusDraft                 Status = "DRAFT"
	StatusSubmitted             Status = "SUBMITTED"
	StatusPendingKYC            Status = "PENDING_KYC"
	StatusPendingCreditCheck    Status = "PENDING_CREDIT_CHECK"
	StatusReferredToUnderwriter Status = "REFERRED_TO_UNDERWRITER"
	StatusReferredToSenior      Status = "REFERRED_TO_SENIOR"
	StatusApproved              Status = "APPROVED"
	StatusOfferGenerated        Status = "OFFER_GENERATED"
	StatusPendingESign          Status = "PENDING_ESIGN"
	StatusESignCompleted        Status = "ESIGN_COMPLETED"
	StatusPendingBooking        Status = "PENDING_BOOKING"
	StatusBooked                Status = "BOOKED"
	StatusDeclined              Status = "DECLINED"
	StatusCancelled             Status = "CANCELLED"
	StatusWithdrawn             Status = "WITHDRAWN"
)

// Phase is a coarse grouping of statuses.
type Phase string

const (
	PhaseOrigination Phase = "ORIGINATION"
	PhaseDecisioning Phase = "DECISIONING"
	PhaseOffer       Phase = "OFFER"
	PhaseBooking     Phase = "BOOKING"
	PhaseTerminal    Phase = "TERMINAL"
)

var statusPhases = map[Status]Phase{
	StatusDraft:                 PhaseOrigination,
	StatusSubmitted:             PhaseDecisioning,
	StatusPendingKYC:            PhaseDecisioning,
	StatusPendingCreditCheck:    PhaseDecisioning,
	StatusReferredToUnderwriter: PhaseDecisioning,
	StatusReferredToSenior:      PhaseDecisioning,
	StatusApproved:              PhaseDecisioning,
	StatusOfferGenerated:        PhaseOffer,
	StatusPendingESign:          PhaseOffer,
	StatusESignCompleted:        PhaseOffer,
	StatusPendingBooking:        PhaseBooking,
	StatusBooked:                PhaseTerminal,
	StatusDeclined:              PhaseTerminal,
	StatusCancelled:             PhaseTerminal,
	StatusWithdrawn:             PhaseTerminal,
}

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusPendingKYC,
	StatusPendingCreditCheck,
	StatusReferredToUnderwriter,
	StatusReferredToSenior,
	StatusApproved,
	StatusOfferGenerated,
	StatusPendingESign,
	StatusESignCompleted,
	StatusPendingBooking,
	StatusBooked,
	StatusDeclined,
	StatusCancelled,
	StatusWithdrawn,
}

// IsValid returns true if the status is a member of the closed enum
func (s Status) IsValid() bool {
	_, ok := statusPhases[s]
	return ok
}

// IsTerminal returns true for absorbing statuses
func (s Status) IsTerminal() bool {
	return statusPhases[s] == PhaseTerminal
}

// Phase returns the phase the status belongs to. Unknown statuses map to "".
func (s Status) Phase() Phase {
	return statusPhases[s]
}

func (s Status) String() string {
	return string(s)
}
