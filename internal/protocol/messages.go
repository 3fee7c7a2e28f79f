package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Name            string            `json:"name"`
	World           string            `json:"world,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	// Token grants operator rights when it matches the server's operator token.
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	OwnerID         string      `json:"owner_id"`
	Operator        bool        `json:"operator,omitempty"`
	World           string      `json:"world"`
	Worlds          []string    `json:"worlds"`
	Params          WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickMillis        int    `json:"tick_millis"`
	UpdatePeriodTicks int    `json:"update_period_ticks"`
	ChunkSize         int    `json:"chunk_size"`
	Height            int    `json:"height"`
	FloorY            int    `json:"floor_y"`
	Boundary          int    `json:"boundary"`
	Seed              int64  `json:"seed"`
	RenderMode        string `json:"render_mode"`
	ViewRadius        int    `json:"view_radius"`
}

// ACK (server -> client): the outcome of one ACT command.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// ERROR (server -> client): a message-level failure not tied to a command.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
