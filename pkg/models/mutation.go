package models

import (
	"fmt"
)

// MutationKind is the shape of a single mutation.
type MutationKind uint8

const (
	// MutationSet replaces the whole document with the carried data.
	MutationSet MutationKind = iota
	// MutationPatch updates individual field paths, leaving others intact.
	MutationPatch
	// MutationDelete removes the document.
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationSet:
		return "set"
	case MutationPatch:
		return "patch"
	case MutationDelete:
		return "delete"
	default:
		return fmt.Sprintf("MutationKind(%d)", uint8(k))
	}
}

// Precondition gates a mutation on the current existence of its target.
type Precondition uint8

const (
	PreconditionNone Precondition = iota
	PreconditionMustExist
	PreconditionMustNotExist
)

func (p Precondition) String() string {
	switch p {
	case PreconditionNone:
		return "none"
	case PreconditionMustExist:
		return "must-exist"
	case PreconditionMustNotExist:
		return "must-not-exist"
	default:
		return fmt.Sprintf("Precondition(%d)", uint8(p))
	}
}

// Check reports whether the precondition holds for a target that currently
// does or does not exist.
func (p Precondition) Check(exists bool) bool {
	switch p {
	case PreconditionMustExist:
		return exists
	case PreconditionMustNotExist:
		return !exists
	default:
		return true
	}
}

// FieldUpdate is one entry of a patch mutation: a dotted field path and the
// encoded value to write there. Order within a mutation is caller order and
// must be preserved end to end.
type FieldUpdate struct {
	Path  string
	Value []byte
}

// Mutation is one write against one key. An ordered slice of mutations forms
// a write batch; both the optimistic local apply and the remote commit see
// the same order.
type Mutation struct {
	Key          DocumentKey
	Kind         MutationKind
	Precondition Precondition

	// Data is the full document payload for MutationSet.
	Data []byte

	// Updates are the field writes for MutationPatch, in caller order.
	Updates []FieldUpdate
}

// NewSet builds a whole-document set mutation.
func NewSet(key DocumentKey, data []byte, pre Precondition) Mutation {
	return Mutation{Key: key, Kind: MutationSet, Precondition: pre, Data: data}
}

// NewPatch builds a field-wise patch mutation.
func NewPatch(key DocumentKey, updates []FieldUpdate, pre Precondition) Mutation {
	return Mutation{Key: key, Kind: MutationPatch, Precondition: pre, Updates: updates}
}

// NewDelete builds a delete mutation.
func NewDelete(key DocumentKey) Mutation {
	return Mutation{Key: key, Kind: MutationDelete, Precondition: PreconditionNone}
}

// ApplyTo applies the mutation to the existing field map (nil if the document
// is absent) and returns the resulting encoded data. A nil result means the
// document does not exist after the mutation.
func (m Mutation) ApplyTo(existing []byte) ([]byte, error) {
	switch m.Kind {
	case MutationSet:
		return m.Data, nil
	case MutationDelete:
		return nil, nil
	case MutationPatch:
		fields := map[string]any{}
		if existing != nil {
			if err := decMode.Unmarshal(existing, &fields); err != nil {
				return nil, fmt.Errorf("patching %s: %w", m.Key, err)
			}
		}
		for _, u := range m.Updates {
			segments, err := SplitFieldPath(u.Path)
			if err != nil {
				return nil, err
			}
			value, err := DecodeValue(u.Value)
			if err != nil {
				return nil, fmt.Errorf("patching %s at %q: %w", m.Key, u.Path, err)
			}
			setField(fields, segments, value)
		}
		return EncodeFields(fields)
	default:
		return nil, fmt.Errorf("unknown mutation kind %v", m.Kind)
	}
}
