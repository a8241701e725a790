package models

// IntentKind names a user-intended lifecycle action routed through the
// dispatcher.
type IntentKind string

const (
	IntentCreate   IntentKind = "Create"
	IntentTake     IntentKind = "Take"
	IntentComplete IntentKind = "Complete"
	IntentCancel   IntentKind = "Cancel"
	IntentClose    IntentKind = "Close"
	IntentBid      IntentKind = "Bid"
)

func ValidIntentKind(k IntentKind) bool {
	switch k {
	case IntentCreate, IntentTake, IntentComplete, IntentCancel, IntentClose, IntentBid:
		return true
	default:
		return false
	}
}

// Intent is one lifecycle action against one tender. TenderId is empty for
// Create; Draft is set only for Create; Bid is set only for Bid.
type Intent struct {
	Kind     IntentKind
	TenderId string
	Actor    string
	Draft    *TenderDraft
	Bid      *BidDraft
}

// IntentResult is what the dispatcher hands back after the call settles and
// the canonical view has been re-merged.
type IntentResult struct {
	Record TenderRecord
	// CapabilityDegraded is set when a Bid intent was reduced to Take
	// because the ledger program exposes no bid functions.
	CapabilityDegraded bool
	// Migrated is set when the target existed only in the record store and
	// was re-issued on the ledger before the action was applied.
	Migrated bool
}
