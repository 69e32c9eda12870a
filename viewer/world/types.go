package world

// Kind identifies what an entity is
type Kind string

const (
	Rabbit  Kind = "rabbit"
	Wolf    Kind = "wolf"
	Carrot  Kind = "carrot"
	Unknown Kind = "unknown"

	// Grid dimensions of the simulation world
	DefaultColumns  = 30
	DefaultRows     = 18
	DefaultTileSize = 32
)

// Kinds lists every kind that has a sprite, in a stable order.
var Kinds = []Kind{Rabbit, Wolf, Carrot}

// ParseKind maps a wire type name to its Kind. Anything outside the known set
// maps to Unknown.
func ParseKind(name string) Kind {
	switch Kind(name) {
	case Rabbit:
		return Rabbit
	case Wolf:
		return Wolf
	case Carrot:
		return Carrot
	default:
		return Unknown
	}
}

// Known reports whether k is one of the drawable kinds.
func (k Kind) Known() bool {
	return k != Unknown && ParseKind(string(k)) == k
}

// Location is a grid coordinate
type Location struct {
	X int `json:"x"` // column
	Y int `json:"y"` // row
}

// Pixel converts the grid coordinate to the top-left pixel of its tile.
func (l Location) Pixel(tileSize int) (int, int) {
	return l.X * tileSize, l.Y * tileSize
}

// Entity is one simulated object in a snapshot
type Entity struct {
	Type     string   `json:"type"` // raw type name as sent by the server
	Kind     Kind     `json:"kind"`
	Location Location `json:"location"`
}

// Snapshot is the complete simulation state carried by one message
type Snapshot struct {
	EnvState []Entity `json:"env_state"`
}

// Len returns the number of entities in the snapshot.
func (s Snapshot) Len() int {
	return len(s.EnvState)
}

// Count returns how many entities of kind k the snapshot holds.
func (s Snapshot) Count(k Kind) int {
	n := 0
	for _, e := range s.EnvState {
		if e.Kind == k {
			n++
		}
	}
	return n
}
