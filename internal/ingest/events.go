package ingest

// Event is the transport-neutral inbound shape. Both the webhook and the
// poller normalize their wire formats into this before handing it to the
// funnel.
type Event struct {
	SenderID   string   `json:"sender_id"`
	SenderName string   `json:"sender_name,omitempty"`
	Command    string   `json:"command,omitempty"`
	Args       []string `json:"args,omitempty"`
	Payload    string   `json:"payload,omitempty"`
	SourceRef  string   `json:"source_ref,omitempty"`
	GroupKey   string   `json:"group_key,omitempty"`
	// Callback marks a retry-button press rather than a fresh entry point.
	Callback bool `json:"callback,omitempty"`
}

// Request is the closed set of typed requests the funnel dispatches. The
// unexported marker keeps the set closed to this package.
type Request interface {
	requestType() string
}

// EntryPoint is a deep-link arrival. An empty Payload is a plain greeting;
// a non-empty one is a redemption attempt.
type EntryPoint struct {
	RequesterID   string
	RequesterName string
	Payload       string
}

// RetryCallback re-enters verification with the payload the deny prompt
// carried, without a fresh entry point.
type RetryCallback struct {
	RequesterID string
	Payload     string
}

// OperatorUpload is one deposited content item.
type OperatorUpload struct {
	OwnerID   string
	OwnerName string
	SourceRef string
	GroupKey  string
}

// Command is a named operator or user command with its arguments.
type Command struct {
	SenderID   string
	SenderName string
	Name       string
	Args       []string
}

func (EntryPoint) requestType() string     { return "entry_point" }
func (RetryCallback) requestType() string  { return "retry_callback" }
func (OperatorUpload) requestType() string { return "operator_upload" }
func (Command) requestType() string        { return "command" }

// Classify maps a wire event to a typed request. It is total: anything it
// cannot place is reported as unclassifiable and dropped by the caller,
// never an error and never a panic.
func Classify(ev Event) (Request, bool) {
	if ev.SenderID == "" {
		return nil, false
	}
	if ev.Callback {
		if ev.Payload == "" {
			return nil, false
		}
		return RetryCallback{RequesterID: ev.SenderID, Payload: ev.Payload}, true
	}
	if ev.SourceRef != "" {
		return OperatorUpload{
			OwnerID:   ev.SenderID,
			OwnerName: ev.SenderName,
			SourceRef: ev.SourceRef,
			GroupKey:  ev.GroupKey,
		}, true
	}
	if ev.Command == "start" {
		payload := ev.Payload
		if payload == "" && len(ev.Args) > 0 {
			payload = ev.Args[0]
		}
		return EntryPoint{
			RequesterID:   ev.SenderID,
			RequesterName: ev.SenderName,
			Payload:       payload,
		}, true
	}
	if ev.Command != "" {
		return Command{
			SenderID:   ev.SenderID,
			SenderName: ev.SenderName,
			Name:       ev.Command,
			Args:       ev.Args,
		}, true
	}
	return nil, false
}
