package api

// EventKind is the payment outcome carried by a gateway event
type EventKind int

const (
	// Ignored - event does not change song state
	Ignored EventKind = iota
	// Paid - payment is confirmed
	Paid
	// Failed - payment failed or was abandoned
	Failed
)

var kindName = map[EventKind]string{Ignored: "ignored", Paid: "paid", Failed: "failed"}

func (k EventKind) String() string {
	return kindName[k]
}

// Event is a verified gateway callback
type Event struct {
	ID            string
	Type          string
	Kind          EventKind
	SongID        string
	SessionID     string
	PaymentLinkID string
	CustomerID    string
	Reason        string
	// Amount paid in the smallest currency unit
	Amount        int64
	Currency      string
}

// PaymentLink is a reusable fixed price payment page
type PaymentLink struct {
	ID  string
	URL string
}

// PaymentIntent is an in-page payment
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}
