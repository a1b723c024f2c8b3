package coltype

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrLiteral carries a diagnostic for a literal that cannot be coerced
// to its expected kind, matching the parse/compile error taxonomy of
// §7 (reported to the caller, never retried).
type ErrLiteral struct {
	Text     string
	Expected Kind
	Reason   string
}

func (e *ErrLiteral) Error() string {
	return fmt.Sprintf("cannot parse %q as %s: %s", e.Text, e.Expected, e.Reason)
}

// binaryPrefix distinguishes a base64-encoded Binary literal from a
// plain string literal per §4.1.
const binaryPrefix = "b64:"

// CoerceLiteral accepts the textual syntaxes described in §4.1 for each
// expected kind and returns the corresponding Value, mirroring the
// teacher's table-driven normalizeDataTypeRules approach but dispatched
// on the closed Kind enum rather than substring matching.
func CoerceLiteral(text string, expected Kind) (Value, error) {
	trimmed := strings.TrimSpace(text)
	switch expected {
	case Int:
		return coerceInt(trimmed)
	case Float:
		f, err := coerceFloat(trimmed)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(float32(f)), nil
	case Double, Decimal128:
		if expected == Decimal128 {
			return coerceDecimal(trimmed)
		}
		f, err := coerceFloat(trimmed)
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(f), nil
	case Timestamp:
		return coerceTimestamp(trimmed)
	case ObjectID:
		return coerceObjectID(trimmed)
	case UUID:
		return coerceUUID(trimmed)
	case Binary:
		return coerceBinary(trimmed)
	case String:
		return coerceStringOrBinary(trimmed)
	case Bool:
		return coerceBool(trimmed)
	default:
		return Value{}, &ErrLiteral{Text: text, Expected: expected, Reason: "unsupported literal kind"}
	}
}

func coerceInt(s string) (Value, error) {
	base := 10
	body := s
	neg := false
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	} else if strings.HasPrefix(body, "+") {
		body = body[1:]
	}
	if strings.HasPrefix(strings.ToLower(body), "0x") {
		base = 16
		body = body[2:]
	}
	n, err := strconv.ParseUint(body, base, 64)
	if err != nil {
		return Value{}, &ErrLiteral{Text: s, Expected: Int, Reason: err.Error()}
	}
	v := int64(n)
	if neg {
		v = -v
	}
	return IntValue(v), nil
}

func coerceFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "+inf", "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ErrLiteral{Text: s, Expected: Double, Reason: err.Error()}
	}
	return f, nil
}

func coerceDecimal(s string) (Value, error) {
	switch strings.ToLower(s) {
	case "+inf", "inf":
		return Decimal128Value(Decimal128{Coefficient: math.MaxUint64, Exponent: 1 << 20}), nil
	case "-inf":
		return Decimal128Value(Decimal128{Negative: true, Coefficient: math.MaxUint64, Exponent: 1 << 20}), nil
	case "nan":
		return Decimal128Value(Decimal128{NaN: true}), nil
	}
	neg := false
	body := s
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	} else if strings.HasPrefix(body, "+") {
		body = body[1:]
	}
	mantissa := body
	exp := 0
	if i := strings.IndexAny(body, "eE"); i >= 0 {
		mantissa = body[:i]
		e, err := strconv.Atoi(body[i+1:])
		if err != nil {
			return Value{}, &ErrLiteral{Text: s, Expected: Decimal128, Reason: "bad exponent: " + err.Error()}
		}
		exp = e
	}
	digits := mantissa
	if dot := strings.IndexByte(mantissa, '.'); dot >= 0 {
		digits = mantissa[:dot] + mantissa[dot+1:]
		exp -= len(mantissa) - dot - 1
	}
	coeff, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return Value{}, &ErrLiteral{Text: s, Expected: Decimal128, Reason: err.Error()}
	}
	return Decimal128Value(Decimal128{Negative: neg, Coefficient: coeff, Exponent: int32(exp)}), nil
}

// coerceTimestamp accepts "YYYY-MM-DD@HH:MM:SS[:NANOS]" or "T<sec>:<nanos>".
func coerceTimestamp(s string) (Value, error) {
	if strings.HasPrefix(s, "T") {
		rest := s[1:]
		parts := strings.SplitN(rest, ":", 2)
		sec, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "bad seconds: " + err.Error()}
		}
		var ns int64
		if len(parts) == 2 {
			ns, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "bad nanoseconds: " + err.Error()}
			}
		}
		ts := Timestamp{Seconds: sec, Nanoseconds: int32(ns)}
		if !ts.Valid() {
			return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "nanoseconds sign must match seconds sign"}
		}
		return TimestampValue(ts), nil
	}

	datePart, timePart, ok := strings.Cut(s, "@")
	if !ok {
		return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "expected YYYY-MM-DD@HH:MM:SS[:NANOS]"}
	}
	dateFields := strings.Split(datePart, "-")
	if len(dateFields) != 3 {
		return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "bad date portion"}
	}
	timeFields := strings.Split(timePart, ":")
	if len(timeFields) < 3 {
		return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "bad time portion"}
	}
	y, err1 := strconv.Atoi(dateFields[0])
	mo, err2 := strconv.Atoi(dateFields[1])
	d, err3 := strconv.Atoi(dateFields[2])
	hh, err4 := strconv.Atoi(timeFields[0])
	mm, err5 := strconv.Atoi(timeFields[1])
	ss, err6 := strconv.Atoi(timeFields[2])
	for _, e := range []error{err1, err2, err3, err4, err5, err6} {
		if e != nil {
			return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: e.Error()}
		}
	}
	var ns int64
	if len(timeFields) == 4 {
		n, err := strconv.ParseInt(timeFields[3], 10, 64)
		if err != nil {
			return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "bad nanoseconds: " + err.Error()}
		}
		ns = n
	}
	sec := daysFromCivil(y, mo, d)*86400 + int64(hh)*3600 + int64(mm)*60 + int64(ss)
	ts := Timestamp{Seconds: sec, Nanoseconds: int32(ns)}
	if !ts.Valid() {
		return Value{}, &ErrLiteral{Text: s, Expected: Timestamp, Reason: "nanoseconds sign must match seconds sign"}
	}
	return TimestampValue(ts), nil
}

// daysFromCivil converts a Gregorian calendar date to days since the
// Unix epoch using Howard Hinnant's algorithm.
func daysFromCivil(y, m, d int) int64 {
	y -= boolToInt(m <= 2)
	era := divFloor(y, 400)
	yoe := y - era*400
	mp := (m + 9) % 12
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return int64(era*146097+doe) - 719468
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func divFloor(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func coerceObjectID(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if len(s) != 24 {
		return Value{}, &ErrLiteral{Text: s, Expected: ObjectID, Reason: "expected 24 hex characters"}
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Value{}, &ErrLiteral{Text: s, Expected: ObjectID, Reason: err.Error()}
	}
	var oid ObjectIDValue
	copy(oid[:], raw)
	return ObjectIDV(oid), nil
}

func coerceUUID(s string) (Value, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Value{}, &ErrLiteral{Text: s, Expected: UUID, Reason: err.Error()}
	}
	return UUIDValue(u), nil
}

func coerceBinary(s string) (Value, error) {
	body := strings.TrimPrefix(s, binaryPrefix)
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Value{}, &ErrLiteral{Text: s, Expected: Binary, Reason: err.Error()}
	}
	return BinaryValue(raw), nil
}

// coerceStringOrBinary accepts a base64-prefixed literal as Binary
// reinterpreted into a String column, per §4.1 ("base64 ... also
// accepted for String and Mixed").
func coerceStringOrBinary(s string) (Value, error) {
	if strings.HasPrefix(s, binaryPrefix) {
		v, err := coerceBinary(s)
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(v.Bin)), nil
	}
	return StringValue(s), nil
}

func coerceBool(s string) (Value, error) {
	switch strings.ToLower(s) {
	case "true":
		return BoolValue(true), nil
	case "false":
		return BoolValue(false), nil
	default:
		return Value{}, &ErrLiteral{Text: s, Expected: Bool, Reason: "expected true or false"}
	}
}
