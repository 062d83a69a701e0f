package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"nsct/internal/repository"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// slotToInt stores a subnet offset in a signed INTEGER column. EUI-64
// offsets use the full 64 bits, so the bit pattern is kept as is.
func slotToInt(offset uint64) int64 {
	return int64(offset)
}

// intToSlot reverses slotToInt
func intToSlot(v int64) uint64 {
	return uint64(v)
}

// ============================================================================
// Snapshot Payload Encoding
// ============================================================================

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	snapshotEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	snapshotDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR decoder mode: %v", err))
	}
}

func encodeSnapshot(s *repository.Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

func decodeSnapshot(data []byte) (*repository.Snapshot, error) {
	var s repository.Snapshot
	if err := snapshotDecMode.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
