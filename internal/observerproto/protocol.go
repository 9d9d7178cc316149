package observerproto

// Version is the observer protocol version.
const Version = "1"

// Client -> Server. First message on the observer WS connection, and can
// be re-sent to narrow the stream to a set of masters.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Masters limits per-master detail to these positions; empty means all.
	Masters [][3]int `json:"masters,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	NodeKinds       []string    `json:"node_kinds"`
	Resources       []string    `json:"resources"`
}

type WorldParams struct {
	TickRateHz         int `json:"tick_rate_hz"`
	SnapshotEveryTicks int `json:"snapshot_every_ticks"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Masters   []MasterState  `json:"masters"`
	Transfers []TransferInfo `json:"transfers,omitempty"`
	Purged    [][3]int       `json:"purged,omitempty"`
	Edits     []EditInfo     `json:"edits,omitempty"`
}

type MasterState struct {
	Pos   [3]int `json:"pos"`
	Nodes int    `json:"nodes"`
	Ran   bool   `json:"ran"`

	ItemBudget  int `json:"item_budget,omitempty"`
	FluidBudget int `json:"fluid_budget,omitempty"`
	ItemMoved   int `json:"item_moved,omitempty"`
	FluidMoved  int `json:"fluid_moved,omitempty"`

	Unreachable [][3]int `json:"unreachable,omitempty"`
}

type TransferInfo struct {
	Master   [3]int `json:"master"`
	Channel  string `json:"channel"`
	From     [3]int `json:"from"`
	To       [3]int `json:"to"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

type EditInfo struct {
	Op    string `json:"op"`
	Pos   [3]int `json:"pos"`
	Error string `json:"error,omitempty"`
}
