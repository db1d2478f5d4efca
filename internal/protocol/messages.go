package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	PlayerName      string     `json:"player_name"`
	AvatarID        string     `json:"avatar_id,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	EntityID        string      `json:"entity_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	WorldID            string `json:"world_id"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	TickRateHz         int    `json:"tick_rate_hz"`
	ConversationRadius int    `json:"conversation_radius"`
	Seed               int64  `json:"seed"`
}

// SNAPSHOT (server -> client): full read-only copy of map + all entities,
// sent once after WELCOME to initialize a new observer.
type SnapshotMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Entities        []EntityView `json:"entities"`
}

type EntityView struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Name    string `json:"name,omitempty"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	FacingX int    `json:"facing_x"`
	FacingY int    `json:"facing_y"`

	ConversationState string `json:"conversation_state,omitempty"`
	PartnerID         string `json:"partner_id,omitempty"`
}

// EntitySummary is the nearby-entity view handed to AI deciders.
type EntitySummary struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Distance int    `json:"distance"`
	Busy     bool   `json:"busy"`
}

// ConversationRequestView is a pending request as seen by its target.
type ConversationRequestView struct {
	RequestID     string `json:"request_id"`
	InitiatorID   string `json:"initiator_id"`
	InitiatorKind string `json:"initiator_kind"`
	Reason        string `json:"reason,omitempty"`
	ExpiresAtMs   int64  `json:"expires_at_ms"`
}

// ACT (client -> server): exactly one of Move, Direction or Conversation
// must be set.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"` // client correlation id
	Tick            uint64 `json:"tick,omitempty"`

	Move         *MoveReq         `json:"move,omitempty"`
	Direction    *DirectionReq    `json:"direction,omitempty"`
	Conversation *ConversationReq `json:"conversation,omitempty"`
}

type MoveReq struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type DirectionReq struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Conversation verbs.
const (
	ConvVerbRequest = "REQUEST"
	ConvVerbAccept  = "ACCEPT"
	ConvVerbReject  = "REJECT"
	ConvVerbEnd     = "END"
)

type ConversationReq struct {
	Verb      string `json:"verb"`
	TargetID  string `json:"target_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ACT_RESULT (server -> client): outcome of one ACT, sent only to the
// originating client.
type ActResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// EVENTS (server -> client): the per-tick event batch, broadcast to every
// connected client.
type EventsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}
