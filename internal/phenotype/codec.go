package phenotype

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// #region errors
// ErrCorruptPersistedState is the sentinel behind every restore failure.
var ErrCorruptPersistedState = errors.New("corrupt persisted phenotype")

// CorruptStateError describes why persisted bytes could not be restored.
type CorruptStateError struct {
	Reason string
	Err    error
}

func (e *CorruptStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCorruptPersistedState, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCorruptPersistedState, e.Reason)
}

func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptPersistedState }

func (e *CorruptStateError) Unwrap() error { return e.Err }

func corrupt(reason string, err error) error {
	return &CorruptStateError{Reason: reason, Err: err}
}

// #endregion errors

// #region wire-format
// formatVersion is bumped whenever the field layout changes.
const formatVersion = 1

const (
	fieldFormat      protowire.Number = 1
	fieldTraits      protowire.Number = 2
	fieldSensitivity protowire.Number = 3
	fieldHaptic      protowire.Number = 4
	fieldEpoch       protowire.Number = 5
	fieldVersionID   protowire.Number = 6
	fieldParentID    protowire.Number = 7
	fieldCommittedAt protowire.Number = 8
)

// #endregion wire-format

// #region serialize
// Serialize encodes p in protobuf wire format. Every field round-trips
// exactly through Restore; CommittedAt comes back as the same instant in
// UTC with any monotonic reading dropped.
func Serialize(p Phenotype) []byte {
	b := make([]byte, 0, 160)
	b = protowire.AppendTag(b, fieldFormat, protowire.VarintType)
	b = protowire.AppendVarint(b, formatVersion)

	b = protowire.AppendTag(b, fieldTraits, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Traits[:])

	b = protowire.AppendTag(b, fieldSensitivity, protowire.BytesType)
	b = protowire.AppendBytes(b, packFloats(p.Sensitivity[:]))

	b = protowire.AppendTag(b, fieldHaptic, protowire.BytesType)
	b = protowire.AppendBytes(b, packFloats(p.Haptic[:]))

	b = protowire.AppendTag(b, fieldEpoch, protowire.VarintType)
	b = protowire.AppendVarint(b, p.Epoch)

	if p.VersionID != "" {
		b = protowire.AppendTag(b, fieldVersionID, protowire.BytesType)
		b = protowire.AppendString(b, p.VersionID)
	}
	if p.ParentID != "" {
		b = protowire.AppendTag(b, fieldParentID, protowire.BytesType)
		b = protowire.AppendString(b, p.ParentID)
	}
	if !p.CommittedAt.IsZero() {
		b = protowire.AppendTag(b, fieldCommittedAt, protowire.BytesType)
		b = protowire.AppendBytes(b, packTimestamp(p.CommittedAt))
	}
	return b
}

func packFloats(vs []float64) []byte {
	buf := make([]byte, 0, len(vs)*8)
	for _, v := range vs {
		buf = protowire.AppendFixed64(buf, math.Float64bits(v))
	}
	return buf
}

// packTimestamp lays t out like google.protobuf.Timestamp: signed seconds
// since the Unix epoch, then non-negative nanoseconds.
func packTimestamp(t time.Time) []byte {
	buf := make([]byte, 0, 16)
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(t.Unix()))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(t.Nanosecond()))
	return buf
}

// #endregion serialize

// #region restore
// Restore decodes bytes produced by Serialize. Malformed input, unknown
// fields, and out-of-bounds values are rejected with a *CorruptStateError.
func Restore(b []byte) (Phenotype, error) {
	if len(b) == 0 {
		return Phenotype{}, corrupt("empty input", nil)
	}
	var p Phenotype
	var seen [fieldCommittedAt + 1]bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Phenotype{}, corrupt("bad tag", protowire.ParseError(n))
		}
		b = b[n:]
		if num < fieldFormat || num > fieldCommittedAt {
			return Phenotype{}, corrupt(fmt.Sprintf("unknown field %d", num), nil)
		}
		if seen[num] {
			return Phenotype{}, corrupt(fmt.Sprintf("duplicate field %d", num), nil)
		}
		seen[num] = true

		var consumed int
		var err error
		switch num {
		case fieldFormat:
			var v uint64
			v, consumed, err = consumeVarint(typ, b)
			if err == nil && v != formatVersion {
				err = fmt.Errorf("unsupported format version %d", v)
			}
		case fieldTraits:
			var raw []byte
			raw, consumed, err = consumeBytes(typ, b)
			if err == nil && len(raw) != NumTraits {
				err = fmt.Errorf("traits length %d, want %d", len(raw), NumTraits)
			}
			if err == nil {
				copy(p.Traits[:], raw)
			}
		case fieldSensitivity:
			var raw []byte
			raw, consumed, err = consumeBytes(typ, b)
			if err == nil {
				err = unpackFloats(raw, p.Sensitivity[:])
			}
		case fieldHaptic:
			var raw []byte
			raw, consumed, err = consumeBytes(typ, b)
			if err == nil {
				err = unpackFloats(raw, p.Haptic[:])
			}
		case fieldEpoch:
			p.Epoch, consumed, err = consumeVarint(typ, b)
		case fieldVersionID:
			var raw []byte
			raw, consumed, err = consumeBytes(typ, b)
			p.VersionID = string(raw)
		case fieldParentID:
			var raw []byte
			raw, consumed, err = consumeBytes(typ, b)
			p.ParentID = string(raw)
		case fieldCommittedAt:
			p.CommittedAt, consumed, err = consumeCommittedAt(typ, b)
		}
		if err != nil {
			return Phenotype{}, corrupt(fmt.Sprintf("field %d", num), err)
		}
		b = b[consumed:]
	}

	for _, req := range []protowire.Number{fieldFormat, fieldTraits, fieldSensitivity, fieldHaptic} {
		if !seen[req] {
			return Phenotype{}, corrupt(fmt.Sprintf("missing field %d", req), nil)
		}
	}
	if err := p.Validate(); err != nil {
		return Phenotype{}, corrupt("validation", err)
	}
	return p, nil
}

// RestoreOrDefault restores b, falling back to the neutral phenotype when
// the bytes are corrupt. The returned error is the warning to surface.
func RestoreOrDefault(b []byte) (Phenotype, error) {
	p, err := Restore(b)
	if err != nil {
		return Default(), err
	}
	return p, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire type %d, want varint", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("wire type %d, want bytes", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// consumeCommittedAt accepts the seconds/nanos message and the older
// fixed64 Unix-nanosecond encoding.
func consumeCommittedAt(typ protowire.Type, b []byte) (time.Time, int, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return time.Time{}, 0, protowire.ParseError(n)
		}
		return time.Unix(0, int64(v)).UTC(), n, nil
	case protowire.BytesType:
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return time.Time{}, 0, protowire.ParseError(n)
		}
		t, err := unpackTimestamp(raw)
		return t, n, err
	}
	return time.Time{}, 0, fmt.Errorf("wire type %d, want bytes", typ)
}

func unpackTimestamp(raw []byte) (time.Time, error) {
	var sec, nsec uint64
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return time.Time{}, protowire.ParseError(n)
		}
		raw = raw[n:]
		if num != 1 && num != 2 {
			return time.Time{}, fmt.Errorf("unknown timestamp field %d", num)
		}
		v, n, err := consumeVarint(typ, raw)
		if err != nil {
			return time.Time{}, err
		}
		raw = raw[n:]
		if num == 1 {
			sec = v
		} else {
			nsec = v
		}
	}
	if nsec >= uint64(time.Second) {
		return time.Time{}, fmt.Errorf("timestamp nanos %d out of range", nsec)
	}
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}

func unpackFloats(raw []byte, dst []float64) error {
	if len(raw) != len(dst)*8 {
		return fmt.Errorf("packed length %d, want %d", len(raw), len(dst)*8)
	}
	for i := range dst {
		v, n := protowire.ConsumeFixed64(raw)
		if n < 0 {
			return protowire.ParseError(n)
		}
		dst[i] = math.Float64frombits(v)
		raw = raw[n:]
	}
	return nil
}

// #endregion restore
