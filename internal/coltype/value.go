package coltype

import (
	"bytes"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Timestamp mirrors the wire-format pair of seconds + nanoseconds
// described in §4.1; the nanoseconds field must carry the same sign as
// the seconds field.
type Timestamp struct {
	Seconds     int64
	Nanoseconds int32
}

// Valid reports whether the nanoseconds field has the same sign as the
// seconds field (or either is zero), per the §4.1 invariant.
func (t Timestamp) Valid() bool {
	if t.Seconds > 0 && t.Nanoseconds < 0 {
		return false
	}
	if t.Seconds < 0 && t.Nanoseconds > 0 {
		return false
	}
	return true
}

func (t Timestamp) Compare(o Timestamp) int {
	if t.Seconds != o.Seconds {
		if t.Seconds < o.Seconds {
			return -1
		}
		return 1
	}
	if t.Nanoseconds != o.Nanoseconds {
		if t.Nanoseconds < o.Nanoseconds {
			return -1
		}
		return 1
	}
	return 0
}

// ObjectIDValue is a 12-byte content identifier, matching the 24-hex-char
// literal syntax in §4.1.
type ObjectIDValue [12]byte

func (o ObjectIDValue) Compare(other ObjectIDValue) int {
	return bytes.Compare(o[:], other[:])
}

// Decimal128 is a minimal decimal floating-point value: sign, integer
// coefficient, and base-10 exponent, plus the special NaN state. The
// example corpus carries no third-party decimal library (see
// DESIGN.md), so this is a stdlib-only implementation of the subset of
// IEEE 754-2008 decimal128 behavior the spec actually requires:
// equality, ordering, and a single canonical NaN.
type Decimal128 struct {
	Negative    bool
	Coefficient uint64
	Exponent    int32
	NaN         bool
}

// Compare implements decimal ordering with a single canonical NaN that
// is unordered relative to everything, including itself.
func (d Decimal128) Compare(o Decimal128) (result int, ordered bool) {
	if d.NaN || o.NaN {
		return 0, false
	}
	df, of := d.approxFloat(), o.approxFloat()
	switch {
	case df < of:
		return -1, true
	case df > of:
		return 1, true
	default:
		return 0, true
	}
}

func (d Decimal128) approxFloat() float64 {
	v := float64(d.Coefficient) * math.Pow(10, float64(d.Exponent))
	if d.Negative {
		v = -v
	}
	return v
}

// Value is the tagged union used for Mixed-kind storage and for
// literal/compile-time constants in the query compiler. Exactly one of
// the payload fields is meaningful, selected by Kind; Null, when true,
// represents the Mixed "null" state which is distinct from "absent".
type Value struct {
	Kind  Kind
	Null  bool
	I     int64
	B     bool
	F     float32
	D     float64
	S     string
	Bin   []byte
	TS    Timestamp
	OID   ObjectIDValue
	Dec   Decimal128
	UUID  uuid.UUID
	ObjID uint64 // resolved ObjKey for Link values
}

func NullValue(k Kind) Value { return Value{Kind: k, Null: true} }

func IntValue(v int64) Value       { return Value{Kind: Int, I: v} }
func BoolValue(v bool) Value       { return Value{Kind: Bool, B: v} }
func FloatValue(v float32) Value   { return Value{Kind: Float, F: v} }
func DoubleValue(v float64) Value  { return Value{Kind: Double, D: v} }
func StringValue(v string) Value   { return Value{Kind: String, S: v} }
func BinaryValue(v []byte) Value   { return Value{Kind: Binary, Bin: v} }
func TimestampValue(v Timestamp) Value { return Value{Kind: Timestamp, TS: v} }
func ObjectIDV(v ObjectIDValue) Value  { return Value{Kind: ObjectID, OID: v} }
func Decimal128Value(v Decimal128) Value { return Value{Kind: Decimal128, Dec: v} }
func UUIDValue(v uuid.UUID) Value      { return Value{Kind: UUID, UUID: v} }
func LinkValue(objKey uint64) Value    { return Value{Kind: Link, ObjID: objKey} }

// Equal implements kind-K equality per the §8 universal invariant: for
// non-Mixed kind K and two values of kind K, equality is value
// equality under K's own rules (NaN handling for floats/decimals,
// byte equality for binary, etc.).
func (v Value) Equal(o Value) bool {
	if v.Null != o.Null {
		return false
	}
	if v.Null {
		return v.Kind == o.Kind
	}
	if v.Kind != o.Kind {
		if v.Kind != Mixed && o.Kind != Mixed {
			return false
		}
	}
	switch v.Kind {
	case Int:
		return v.I == o.I
	case Bool:
		return v.B == o.B
	case Float:
		return v.F == o.F // NaN != NaN falls out naturally
	case Double:
		return v.D == o.D
	case String:
		return v.S == o.S
	case Binary:
		return bytes.Equal(v.Bin, o.Bin)
	case Timestamp:
		return v.TS == o.TS
	case ObjectID:
		return v.OID == o.OID
	case Decimal128:
		if v.Dec.NaN || o.Dec.NaN {
			return false
		}
		c, _ := v.Dec.Compare(o.Dec)
		return c == 0
	case UUID:
		return v.UUID == o.UUID
	case Link:
		return v.ObjID == o.ObjID
	default:
		return false
	}
}

// Compare implements relational ordering. ok is false when the values
// are unordered (IEEE-754 NaN, decimal NaN, or kind mismatch).
func (v Value) Compare(o Value) (result int, ok bool) {
	if v.Kind != o.Kind {
		return 0, false
	}
	switch v.Kind {
	case Int:
		return cmpInt64(v.I, o.I), true
	case Float:
		return cmpFloat(float64(v.F), float64(o.F))
	case Double:
		return cmpFloat(v.D, o.D)
	case String:
		return cmpString(v.S, o.S), true
	case Binary:
		return bytes.Compare(v.Bin, o.Bin), true
	case Timestamp:
		return v.TS.Compare(o.TS), true
	case ObjectID:
		return v.OID.Compare(o.OID), true
	case Decimal128:
		return v.Dec.Compare(o.Dec)
	default:
		return 0, false
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// cmpFloat implements IEEE-754 ordering where NaN is unordered: any
// comparison involving NaN returns ok=false so relational operators
// evaluate to false and equality/inequality fall back to Equal's
// direct `==`/`!=` semantics (NaN == NaN is false, NaN != NaN is true).
func cmpFloat(a, b float64) (int, bool) {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	default:
		return 0, true
	}
}

// Float64 returns a float64 approximation of a numeric-kind value, for
// use by aggregate computations (sum/average/min/max). It is exact for
// Int, Float, and Double and approximate for Decimal128.
func (v Value) Float64() float64 {
	switch v.Kind {
	case Int:
		return float64(v.I)
	case Float:
		return float64(v.F)
	case Double:
		return v.D
	case Decimal128:
		return v.Dec.approxFloat()
	default:
		return 0
	}
}

func (v Value) String() string {
	if v.Null {
		return fmt.Sprintf("%s(null)", v.Kind)
	}
	switch v.Kind {
	case Int:
		return fmt.Sprintf("%d", v.I)
	case Bool:
		return fmt.Sprintf("%t", v.B)
	case Float:
		return fmt.Sprintf("%g", v.F)
	case Double:
		return fmt.Sprintf("%g", v.D)
	case String:
		return v.S
	case Binary:
		return fmt.Sprintf("binary(%d bytes)", len(v.Bin))
	case Timestamp:
		return fmt.Sprintf("T%d:%d", v.TS.Seconds, v.TS.Nanoseconds)
	case ObjectID:
		return fmt.Sprintf("%x", v.OID[:])
	case Decimal128:
		if v.Dec.NaN {
			return "nan"
		}
		return fmt.Sprintf("%g", v.Dec.approxFloat())
	case UUID:
		return v.UUID.String()
	case Link:
		return fmt.Sprintf("-> obj#%d", v.ObjID)
	default:
		return "<invalid>"
	}
}
