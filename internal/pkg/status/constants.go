package status

// Status represents song lifecycle status
type Status int

const (
	// Pending - voice sample uploaded
	Pending Status = iota + 1
	// Processing - synthesis in progress or payment received
	Processing
	// Completed - preview or full song is ready
	Completed
	// Failed - synthesis or payment failed
	Failed
)

var (
	statusName = map[Status]string{Pending: "pending", Processing: "processing",
		Completed: "completed", Failed: "failed"}
	nameStatus = map[string]Status{"pending": Pending, "processing": Processing,
		"completed": Completed, "failed": Failed}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}
