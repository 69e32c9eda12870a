package world

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrMissingState      = errors.New("snapshot has no env_state")
	ErrBadLocation       = errors.New("entity location must be [column, row]")
)

// wireEntity mirrors one element of env_state as the server sends it
type wireEntity struct {
	Type     string `json:"type"`
	Location []int  `json:"location"`
}

type wireSnapshot struct {
	EnvState *[]wireEntity `json:"env_state"`
}

// Decode parses one inbound message into a Snapshot and validates its shape.
func Decode(data []byte) (Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty message", ErrMalformedSnapshot)
	}

	var wire wireSnapshot
	if err := json.Unmarshal(data, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if wire.EnvState == nil {
		return Snapshot{}, ErrMissingState
	}

	entities := make([]Entity, 0, len(*wire.EnvState))
	for i, we := range *wire.EnvState {
		if len(we.Location) != 2 {
			return Snapshot{}, fmt.Errorf("%w: entity %d has %d coordinates", ErrBadLocation, i, len(we.Location))
		}
		entities = append(entities, Entity{
			Type:     we.Type,
			Kind:     ParseKind(we.Type),
			Location: Location{X: we.Location[0], Y: we.Location[1]},
		})
	}

	return Snapshot{EnvState: entities}, nil
}

// Encode renders a snapshot in the wire format accepted by Decode.
func Encode(s Snapshot) ([]byte, error) {
	wire := make([]wireEntity, len(s.EnvState))
	for i, e := range s.EnvState {
		name := e.Type
		if name == "" {
			name = string(e.Kind)
		}
		wire[i] = wireEntity{Type: name, Location: []int{e.Location.X, e.Location.Y}}
	}
	return json.Marshal(wireSnapshot{EnvState: &wire})
}
