package protocol

// Command types carried in ACT.
const (
	CmdInteract    = "INTERACT"
	CmdToggleTrail = "TOGGLE_TRAIL"
	CmdColor       = "COLOR"
	CmdMount       = "MOUNT"
	CmdDismount    = "DISMOUNT"
	CmdTravel      = "TRAVEL"
	CmdResync      = "RESYNC"
	CmdReload      = "RELOAD"
	CmdDerez       = "DEREZ"
)

// ACT (client -> server): steering plus zero or more commands.
type ActMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            uint64    `json:"tick,omitempty"`
	Steer           *Steer    `json:"steer,omitempty"`
	Commands        []Command `json:"commands,omitempty"`
}

// Steer sets heading in degrees (0 = +Z, 90 = -X) and throttle in [-1,1].
type Steer struct {
	Yaw      float64 `json:"yaw"`
	Throttle float64 `json:"throttle"`
}

type Command struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
	World string `json:"world,omitempty"`
}

// OBS (server -> client), sent once per engine update.
type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	OwnerID         string `json:"owner_id"`
	World           string `json:"world"`

	Self    SelfObs     `json:"self"`
	Riders  []RiderObs  `json:"riders"`
	Cells   []CellObs   `json:"cells,omitempty"`
	Effects []EffectObs `json:"effects,omitempty"`
	Notices []string    `json:"notices,omitempty"`
}

type SelfObs struct {
	Pos     [3]float64 `json:"pos"`
	Yaw     float64    `json:"yaw"`
	HP      float64    `json:"hp"`
	Mounted bool       `json:"mounted"`
	Cycle   *CycleObs  `json:"cycle,omitempty"`
}

type CycleObs struct {
	VehicleID string     `json:"vehicle_id"`
	Color     string     `json:"color"`
	Pos       [3]float64 `json:"pos"`
	Speed     float64    `json:"speed"`
	Emit      bool       `json:"emit"`
	State     string     `json:"state"`
}

type RiderObs struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Pos     [3]float64 `json:"pos"`
	Yaw     float64    `json:"yaw"`
	Mounted bool       `json:"mounted"`
	Color   string     `json:"color,omitempty"`
	Glow    bool       `json:"glow,omitempty"`
}

// CellObs is one cell the client should draw. Override cells are visible to
// this client only and are replaced by the next real update of that position.
type CellObs struct {
	Pos      [3]int `json:"pos"`
	Material string `json:"material"`
	Faces    uint8  `json:"faces,omitempty"`
	Level    uint8  `json:"level,omitempty"`
	Override bool   `json:"override,omitempty"`
}

type EffectObs struct {
	Effect string     `json:"effect"`
	Pos    [3]float64 `json:"pos"`
	Color  string     `json:"color,omitempty"`
}
