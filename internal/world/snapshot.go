package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// DomainState prefixes state digests so they cannot collide with other
// hashes computed over the same bytes.
const DomainState = "worldtx/state/v1"

// Snapshot is the serializable form of a State: component name to
// (entity id to JSON-encoded value). Every registered component appears,
// empty ones included.
type Snapshot struct {
	Components map[string]map[EntityID]json.RawMessage `json:"components"`
}

// Encode returns the canonical JSON encoding of the snapshot.
// Map keys are emitted in sorted order, so equal snapshots encode equally.
func (sn Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(sn)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses data produced by Snapshot.Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var sn Snapshot
	if err := json.Unmarshal(data, &sn); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if sn.Components == nil {
		sn.Components = make(map[string]map[EntityID]json.RawMessage)
	}
	return sn, nil
}

// Snapshot captures s in serializable form.
func (s *State) Snapshot() (Snapshot, error) {
	sn := Snapshot{Components: make(map[string]map[EntityID]json.RawMessage, len(s.cols))}
	for i, col := range s.cols {
		name := s.schema.kinds[i].desc.name
		values, err := col.encode()
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot %s: %w", name, err)
		}
		sn.Components[name] = values
	}
	return sn, nil
}

// Restore builds a State from sn. Components missing from sn are left empty;
// names the schema does not know yield ErrUnknownComponent.
func (s *Schema) Restore(sn Snapshot) (*State, error) {
	st := s.NewState()
	for name, values := range sn.Components {
		desc, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("restore: %w: %q", ErrUnknownComponent, name)
		}
		if err := st.cols[desc.index].decode(values); err != nil {
			return nil, fmt.Errorf("restore %s: %w", desc.name, err)
		}
	}
	return st, nil
}

// Digest returns the hex SHA-256 of the canonical snapshot encoding, with
// domain separation: SHA256(DomainState + 0x00 + data).
func (s *State) Digest() (string, error) {
	data, err := s.canonical()
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainState, data), nil
}

// Checksum returns the xxhash64 of the canonical snapshot encoding.
// It is cheaper than Digest and is recorded after every processed action.
func (s *State) Checksum() (uint64, error) {
	data, err := s.canonical()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

func (s *State) canonical() ([]byte, error) {
	sn, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return sn.Encode()
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
