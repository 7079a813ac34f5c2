package avail

import (
	"encoding/json"
	"fmt"

	"github.com/gabapcia/availkit/internal/pkg/transport/wsrpc"
	"github.com/gabapcia/availkit/internal/pkg/types"
)

// ExtrinsicStatusKind is a stage of the transaction pool lifecycle.
type ExtrinsicStatusKind string

const (
	StatusFuture          ExtrinsicStatusKind = "future"
	StatusReady           ExtrinsicStatusKind = "ready"
	StatusBroadcast       ExtrinsicStatusKind = "broadcast"
	StatusInBlock         ExtrinsicStatusKind = "inBlock"
	StatusRetracted       ExtrinsicStatusKind = "retracted"
	StatusFinalityTimeout ExtrinsicStatusKind = "finalityTimeout"
	StatusFinalized       ExtrinsicStatusKind = "finalized"
	StatusUsurped         ExtrinsicStatusKind = "usurped"
	StatusDropped         ExtrinsicStatusKind = "dropped"
	StatusInvalid         ExtrinsicStatusKind = "invalid"
)

// IsTerminal reports whether no further status follows.
func (k ExtrinsicStatusKind) IsTerminal() bool {
	switch k {
	case StatusFinalized, StatusUsurped, StatusDropped, StatusInvalid, StatusFinalityTimeout:
		return true
	default:
		return false
	}
}

// ExtrinsicStatus is one update of an extrinsic watched after submission.
type ExtrinsicStatus struct {
	Kind ExtrinsicStatusKind

	// Hash is the block hash for inBlock, retracted, finalityTimeout and
	// finalized, and the replacing extrinsic for usurped.
	Hash types.H256

	// Peers is set for broadcast.
	Peers []string
}

func (s ExtrinsicStatus) IsTerminal() bool {
	return s.Kind.IsTerminal()
}

func (s ExtrinsicStatus) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StatusFuture, StatusReady, StatusDropped, StatusInvalid:
		return json.Marshal(string(s.Kind))
	case StatusBroadcast:
		return json.Marshal(map[string][]string{string(s.Kind): s.Peers})
	default:
		return json.Marshal(map[string]types.H256{string(s.Kind): s.Hash})
	}
}

// UnmarshalJSON decodes the node representation: a bare string for
// variants without payload, a single key object otherwise.
func (s *ExtrinsicStatus) UnmarshalJSON(data []byte) error {
	*s = ExtrinsicStatus{}

	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		switch k := ExtrinsicStatusKind(kind); k {
		case StatusFuture, StatusReady, StatusDropped, StatusInvalid:
			s.Kind = k
			return nil
		default:
			return fmt.Errorf("%w: extrinsic status %q", ErrUnknownVariant, kind)
		}
	}

	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return err
	}

	if len(variants) != 1 {
		return fmt.Errorf("%w: expected one extrinsic status, got %d", ErrUnknownVariant, len(variants))
	}

	for name, raw := range variants {
		switch k := ExtrinsicStatusKind(name); k {
		case StatusBroadcast:
			s.Kind = k
			return json.Unmarshal(raw, &s.Peers)
		case StatusInBlock, StatusRetracted, StatusFinalityTimeout, StatusFinalized, StatusUsurped:
			s.Kind = k
			return json.Unmarshal(raw, &s.Hash)
		default:
			return fmt.Errorf("%w: extrinsic status %q", ErrUnknownVariant, name)
		}
	}
	return nil
}

// ExtrinsicWatch streams the status of a submitted extrinsic until a
// terminal status.
type ExtrinsicWatch struct {
	*Stream[ExtrinsicStatus]
	hash types.H256
}

func newExtrinsicWatch(hash types.H256, sub *wsrpc.Subscription) *ExtrinsicWatch {
	return &ExtrinsicWatch{
		Stream: newStream(sub, ExtrinsicStatus.IsTerminal),
		hash:   hash,
	}
}

// Hash is the extrinsic hash.
func (w *ExtrinsicWatch) Hash() types.H256 {
	return w.hash
}
