package pipeline

// State is a step of the per-request lifecycle.
type State int

// Lifecycle states, in order. Aborted is reachable from any state and is
// terminal.
const (
	StateReceived State = iota
	StateSchemaChecked
	StateDeserialized
	StateStructureChecked
	StateKeyExtracted
	StateEnriched
	StateDelivered
	StateAborted
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateSchemaChecked:
		return "schema_checked"
	case StateDeserialized:
		return "deserialized"
	case StateStructureChecked:
		return "structure_checked"
	case StateKeyExtracted:
		return "key_extracted"
	case StateEnriched:
		return "enriched"
	case StateDelivered:
		return "delivered"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
