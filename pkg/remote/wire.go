package remote

import (
	"fmt"

	"github.com/quilldb/quill.go/pkg/models"
)

// Request is one commit RPC as it travels over the wire.
type Request struct {
	ID        string     `cbor:"id"`
	Method    string     `cbor:"method"`
	BatchID   int64      `cbor:"batch_id"`
	Mutations []Mutation `cbor:"mutations"`
}

// MethodCommit is the only method the commit channel speaks.
const MethodCommit = "commit"

// Mutation is the wire form of one mutation. Kind and Precondition travel
// as their numeric values; Data and update values are the already-encoded
// document payloads, passed through opaquely.
type Mutation struct {
	Collection   string        `cbor:"collection"`
	DocID        string        `cbor:"doc_id"`
	Kind         uint8         `cbor:"kind"`
	Precondition uint8         `cbor:"precondition"`
	Data         []byte        `cbor:"data,omitempty"`
	Updates      []FieldUpdate `cbor:"updates,omitempty"`
}

// FieldUpdate is the wire form of one field write of a patch mutation.
// Update order is caller order and is preserved end to end.
type FieldUpdate struct {
	Path  string `cbor:"path"`
	Value []byte `cbor:"value"`
}

// Response answers one Request, matched by ID. A nil Error means the batch
// committed.
type Response struct {
	ID    string    `cbor:"id"`
	Error *RPCError `cbor:"error,omitempty"`
}

// RPCError is a backend-reported commit failure.
type RPCError struct {
	Code    int    `cbor:"code"`
	Message string `cbor:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Backend error codes.
const (
	CodeParseError         = -32700
	CodePreconditionFailed = 1001
	CodeInternal           = 1000
)

// ToWire converts a mutation batch to its wire form.
func ToWire(muts []models.Mutation) []Mutation {
	wire := make([]Mutation, 0, len(muts))
	for _, m := range muts {
		wm := Mutation{
			Collection:   m.Key.Collection,
			DocID:        m.Key.ID,
			Kind:         uint8(m.Kind),
			Precondition: uint8(m.Precondition),
			Data:         m.Data,
		}
		for _, u := range m.Updates {
			wm.Updates = append(wm.Updates, FieldUpdate{Path: u.Path, Value: u.Value})
		}
		wire = append(wire, wm)
	}
	return wire
}

// FromWire converts a wire batch back to model mutations.
func FromWire(wire []Mutation) []models.Mutation {
	muts := make([]models.Mutation, 0, len(wire))
	for _, wm := range wire {
		m := models.Mutation{
			Key:          models.DocumentKey{Collection: wm.Collection, ID: wm.DocID},
			Kind:         models.MutationKind(wm.Kind),
			Precondition: models.Precondition(wm.Precondition),
			Data:         wm.Data,
		}
		for _, u := range wm.Updates {
			m.Updates = append(m.Updates, models.FieldUpdate{Path: u.Path, Value: u.Value})
		}
		muts = append(muts, m)
	}
	return muts
}
