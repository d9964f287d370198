package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// recordEncMode encodes records deterministically with integer keys.
var recordEncMode cbor.EncMode

var recordDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	recordEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	recordDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// EncodeRecord serializes rec for byte-oriented backends.
func EncodeRecord(rec Record) ([]byte, error) {
	return recordEncMode.Marshal(rec)
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := recordDecMode.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return rec, nil
}
