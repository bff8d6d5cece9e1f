package mailer

// Status is the terminal state of one processed message.
type Status int

const (
	// StatusFailed means no reply was sent: fetching or decoding failed.
	StatusFailed Status = iota
	// StatusSendFailed means the reply could not be sent; the message stays unseen.
	StatusSendFailed
	// StatusMarkFailed means the reply was sent but the message could not be flagged.
	StatusMarkFailed
	// StatusReplied means the reply was sent and the message flagged as seen.
	StatusReplied
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusSendFailed:
		return "send_failed"
	case StatusMarkFailed:
		return "mark_failed"
	case StatusReplied:
		return "replied"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Ref      MessageRef
	From     string
	Subject  string
	Status   Status
	Fallback bool // The fallback text was sent instead of a generated reply.
	Err      error
}

// Sent reports whether a reply left the agent for this message.
func (o Outcome) Sent() bool {
	return o.Status == StatusReplied || o.Status == StatusMarkFailed
}

// CycleReport lists outcomes in the order the mailbox returned the messages.
type CycleReport struct {
	Outcomes []Outcome
}

func (r CycleReport) Count(status Status) int {
	var n int
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (r CycleReport) Sent() int {
	var n int
	for _, o := range r.Outcomes {
		if o.Sent() {
			n++
		}
	}
	return n
}
