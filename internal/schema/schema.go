package schema

// EventType defines the category of a mailbox notification.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventConnectionChanged
	EventDataReceived
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnectionChanged:
		return "connection_changed"
	case EventDataReceived:
		return "data_received"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Source tells which side of the mailbox produced an event.
type Source uint16

const (
	SourceUnknown Source = iota
	// SourceWait is an explicit Send waiting for its response.
	SourceWait
	// SourcePoller is the background poller draining unsolicited files.
	SourcePoller
	// SourceProbe is the liveness probe issued by Connect.
	SourceProbe
)

func (s Source) String() string {
	switch s {
	case SourceWait:
		return "wait"
	case SourcePoller:
		return "poller"
	case SourceProbe:
		return "probe"
	default:
		return "unknown"
	}
}

// EventHeader is the common metadata attached to every notification.
type EventHeader struct {
	Type    EventType
	Source  Source
	Seq     uint64
	TsEvent int64
}

// NewHeader builds a notification header.
func NewHeader(eventType EventType, source Source, seq uint64, tsEvent int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
	}
}
