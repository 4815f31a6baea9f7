package interfaces

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// EntryType is the declared type of a POD entry value.
type EntryType string

const (
	StringEntry        EntryType = "string"
	IntEntry           EntryType = "int"
	CryptographicEntry EntryType = "cryptographic"
	BooleanEntry       EntryType = "boolean"
)

// Well-known entry names.
const (
	OwnerEntry       = "owner"
	TimestampEntry   = "timestamp"
	TitleEntry       = "zupass_title"
	DescriptionEntry = "zupass_description"
)

var entryNameRegexp = regexp.MustCompile(`^[A-Za-z_]\w*$`)

var (
	minInt = big.NewInt(math.MinInt64)
	maxInt = big.NewInt(math.MaxInt64)
)

// Value is a typed POD entry value. Numeric kinds (int, cryptographic,
// boolean) live in Num, strings in Str.
type Value struct {
	Type EntryType
	Str  string
	Num  *big.Int
}

// NewString returns a string entry value.
func NewString(s string) Value { return Value{Type: StringEntry, Str: s} }

// NewInt returns an int entry value.
func NewInt(i int64) Value { return Value{Type: IntEntry, Num: big.NewInt(i)} }

// NewCryptographic returns a cryptographic entry value. The integer is copied.
func NewCryptographic(n *big.Int) Value {
	return Value{Type: CryptographicEntry, Num: new(big.Int).Set(n)}
}

// NewBoolean returns a boolean entry value, stored as 0 or 1.
func NewBoolean(b bool) Value {
	if b {
		return Value{Type: BooleanEntry, Num: big.NewInt(1)}
	}
	return Value{Type: BooleanEntry, Num: big.NewInt(0)}
}

// Validate checks that the value is representable under its declared type.
func (v Value) Validate() error {
	switch v.Type {
	case StringEntry:
		return nil
	case IntEntry:
		if v.Num == nil || v.Num.Cmp(minInt) < 0 || v.Num.Cmp(maxInt) > 0 {
			return fmt.Errorf("int value out of 64-bit range")
		}
	case CryptographicEntry:
		if v.Num == nil || v.Num.Sign() < 0 || v.Num.Cmp(fr.Modulus()) >= 0 {
			return fmt.Errorf("cryptographic value out of field range")
		}
	case BooleanEntry:
		if v.Num == nil || (v.Num.Sign() != 0 && v.Num.Cmp(big.NewInt(1)) != 0) {
			return fmt.Errorf("boolean value must be 0 or 1")
		}
	default:
		return fmt.Errorf("unknown entry type %q", v.Type)
	}
	return nil
}

// Equal reports whether two values have the same type and content.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	if v.Type == StringEntry {
		return v.Str == other.Str
	}
	if v.Num == nil || other.Num == nil {
		return v.Num == other.Num
	}
	return v.Num.Cmp(other.Num) == 0
}

func (v Value) clone() Value {
	out := Value{Type: v.Type, Str: v.Str}
	if v.Num != nil {
		out.Num = new(big.Int).Set(v.Num)
	}
	return out
}

type valueJSON struct {
	Type  EntryType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes numbers as bare JSON number literals so that values
// wider than 64 bits round-trip exactly.
func (v Value) MarshalJSON() ([]byte, error) {
	var raw []byte
	switch v.Type {
	case StringEntry:
		b, err := json.Marshal(v.Str)
		if err != nil {
			return nil, err
		}
		raw = b
	case BooleanEntry:
		raw = []byte("false")
		if v.Num != nil && v.Num.Sign() != 0 {
			raw = []byte("true")
		}
	case IntEntry, CryptographicEntry:
		if v.Num == nil {
			return nil, fmt.Errorf("missing numeric value for %s entry", v.Type)
		}
		raw = []byte(v.Num.String())
	default:
		return nil, fmt.Errorf("unknown entry type %q", v.Type)
	}
	return json.Marshal(valueJSON{Type: v.Type, Value: raw})
}

// UnmarshalJSON accepts the typed form {"type": ..., "value": ...}. Numeric
// values may be JSON numbers or decimal or 0x-hex strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var vj valueJSON
	if err := json.Unmarshal(data, &vj); err != nil {
		return err
	}

	out := Value{Type: vj.Type}
	switch vj.Type {
	case StringEntry:
		if err := json.Unmarshal(vj.Value, &out.Str); err != nil {
			return fmt.Errorf("invalid string value: %w", err)
		}
	case BooleanEntry:
		var b bool
		if err := json.Unmarshal(vj.Value, &b); err == nil {
			out = NewBoolean(b)
			break
		}
		n, err := ParseBigNumber(vj.Value)
		if err != nil {
			return err
		}
		out.Num = n
	case IntEntry, CryptographicEntry:
		n, err := ParseBigNumber(vj.Value)
		if err != nil {
			return err
		}
		out.Num = n
	default:
		return fmt.Errorf("unknown entry type %q", vj.Type)
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*v = out
	return nil
}

// ParseBigNumber reads a JSON number literal or a quoted string. Strings are
// decimal unless prefixed with 0x, so leading zeros never select octal and
// digit separators are rejected.
func ParseBigNumber(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
	}

	digits, base := text, 10
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		digits, base = text[2:], 16
		if digits[0] == '+' || digits[0] == '-' {
			return nil, fmt.Errorf("invalid integer %q", text)
		}
	}

	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	return n, nil
}

// Entries maps entry names to typed values.
type Entries map[string]Value

// Names returns entry names in canonical (lexicographic) order.
func (e Entries) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (e Entries) Clone() Entries {
	out := make(Entries, len(e))
	for name, v := range e {
		out[name] = v.clone()
	}
	return out
}

// Validate checks names, value ranges, and the owner entry type.
func (e Entries) Validate() error {
	if len(e) == 0 {
		return errors.New("POD must contain at least one entry")
	}
	for name, v := range e {
		if !entryNameRegexp.MatchString(name) {
			return fmt.Errorf("invalid entry name %q", name)
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("entry %q: %w", name, err)
		}
	}
	if owner, ok := e[OwnerEntry]; ok && owner.Type != CryptographicEntry {
		return fmt.Errorf("entry %q must be of type %s", OwnerEntry, CryptographicEntry)
	}
	return nil
}

// StringValue returns a string entry by name.
func (e Entries) StringValue(name string) (string, bool) {
	v, ok := e[name]
	if !ok || v.Type != StringEntry {
		return "", false
	}
	return v.Str, true
}

// EntriesFromSimplifiedJSON parses the admin-facing entry format where
// values carry no explicit type: strings become string entries, numbers int
// entries (cryptographic when outside the 64-bit range), booleans boolean
// entries. A single-key object such as {"cryptographic": "123"} selects the
// type explicitly.
func EntriesFromSimplifiedJSON(data []byte) (Entries, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid POD entries: %w", err)
	}

	entries := make(Entries, len(raw))
	for name, rawValue := range raw {
		v, err := simplifiedValue(rawValue)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		entries[name] = v
	}

	if err := entries.Validate(); err != nil {
		return nil, err
	}
	return entries, nil
}

func simplifiedValue(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, errors.New("empty value")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return NewString(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return NewBoolean(b), nil
	case '{':
		var typed map[string]json.RawMessage
		if err := json.Unmarshal(raw, &typed); err != nil {
			return Value{}, err
		}
		if len(typed) != 1 {
			return Value{}, errors.New("typed value must have exactly one key")
		}
		for typeName, inner := range typed {
			var v Value
			if err := v.UnmarshalJSON(mustTyped(typeName, inner)); err != nil {
				return Value{}, err
			}
			return v, nil
		}
	}

	n, err := ParseBigNumber(raw)
	if err != nil {
		return Value{}, err
	}
	if n.Cmp(minInt) < 0 || n.Cmp(maxInt) > 0 {
		return Value{Type: CryptographicEntry, Num: n}, nil
	}
	return Value{Type: IntEntry, Num: n}, nil
}

func mustTyped(typeName string, inner json.RawMessage) []byte {
	b, _ := json.Marshal(valueJSON{Type: EntryType(typeName), Value: inner})
	return b
}
