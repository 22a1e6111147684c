package channel

// Relay operations.
const (
	OpGet          = "get"
	OpSet          = "set"
	OpSetEphemeral = "setEphemeral"
	OpDelete       = "delete"
	OpCAS          = "cas"
	OpKeys         = "keys"
	OpSubscribe    = "subscribe"
	OpUnsubscribe  = "unsubscribe"
	OpUpdate       = "update" // server push for a subscription
	OpResult       = "result" // server reply to a request
)

// RelaySubprotocol is the websocket subprotocol spoken on /relay/ws.
const RelaySubprotocol = "relay"

// Frame is the single JSON message shape of the relay protocol. Requests carry
// an ID that the result echoes; updates carry the ID of the subscribe request.
type Frame struct {
	ID      uint64   `json:"id,omitempty"`
	Op      string   `json:"op"`
	Key     string   `json:"key,omitempty"`
	Value   []byte   `json:"value,omitempty"`
	Old     []byte   `json:"old,omitempty"`
	Prefix  string   `json:"prefix,omitempty"`
	Keys    []string `json:"keys,omitempty"`
	Found   bool     `json:"found,omitempty"`
	Swapped bool     `json:"swapped,omitempty"`
	Deleted bool     `json:"deleted,omitempty"`
	Error   string   `json:"error,omitempty"`
}
