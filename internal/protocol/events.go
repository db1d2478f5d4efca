package protocol

type EventType string

const (
	EventEntityJoined EventType = "ENTITY_JOINED"
	EventEntityLeft   EventType = "ENTITY_LEFT"
	EventEntityMoved  EventType = "ENTITY_MOVED"
	EventEntityTurned EventType = "ENTITY_TURNED"

	EventConversationRequested EventType = "CONVERSATION_REQUESTED"
	EventConversationAccepted  EventType = "CONVERSATION_ACCEPTED"
	EventConversationStarted   EventType = "CONVERSATION_STARTED"
	EventConversationRejected  EventType = "CONVERSATION_REJECTED"
	EventConversationEnded     EventType = "CONVERSATION_ENDED"
)

var knownEventTypes = map[EventType]struct{}{
	EventEntityJoined:          {},
	EventEntityLeft:            {},
	EventEntityMoved:           {},
	EventEntityTurned:          {},
	EventConversationRequested: {},
	EventConversationAccepted:  {},
	EventConversationStarted:   {},
	EventConversationRejected:  {},
	EventConversationEnded:     {},
}

func IsKnownEventType(t EventType) bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Event is a single world-engine occurrence, self-sufficient for clients to
// reconstruct state without re-querying. Which fields are populated depends
// on Type; the zero value of an unused field is omitted on the wire.
type Event struct {
	Type EventType `json:"type"`
	Tick uint64    `json:"t"`

	EntityID string `json:"entity_id,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Name     string `json:"name,omitempty"`

	X int `json:"x"`
	Y int `json:"y"`

	FacingX int `json:"facing_x,omitempty"`
	FacingY int `json:"facing_y,omitempty"`

	RequestID   string `json:"request_id,omitempty"`
	InitiatorID string `json:"initiator_id,omitempty"`
	TargetID    string `json:"target_id,omitempty"`
	PartnerID   string `json:"partner_id,omitempty"`
	EndedBy     string `json:"ended_by,omitempty"`
	Reason      string `json:"reason,omitempty"`

	ExpiresAtMs     int64 `json:"expires_at_ms,omitempty"`
	CooldownUntilMs int64 `json:"cooldown_until_ms,omitempty"`
}
