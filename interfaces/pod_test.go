package interfaces

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntriesFromSimplifiedJSON(t *testing.T) {
	entries, err := EntriesFromSimplifiedJSON([]byte(`{
		"zupass_title": "friendly kitty",
		"count": 42,
		"huge": 123456789012345678901234567890,
		"flag": true,
		"secret": {"cryptographic": "987654321"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, NewString("friendly kitty"), entries["zupass_title"])
	assert.Equal(t, IntEntry, entries["count"].Type)
	assert.Equal(t, int64(42), entries["count"].Num.Int64())
	assert.Equal(t, CryptographicEntry, entries["huge"].Type)
	assert.Equal(t, "123456789012345678901234567890", entries["huge"].Num.String())
	assert.Equal(t, BooleanEntry, entries["flag"].Type)
	assert.Equal(t, CryptographicEntry, entries["secret"].Type)
}

func TestEntriesFromSimplifiedJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not an object", `[1,2]`},
		{"empty", `{}`},
		{"bad name", `{"1abc": "x"}`},
		{"owner not cryptographic", `{"owner": 5}`},
		{"two type keys", `{"x": {"int": 1, "string": "a"}}`},
		{"unknown type", `{"x": {"float": 1}}`},
		{"int overflow", `{"x": {"int": 99999999999999999999}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EntriesFromSimplifiedJSON([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestParseBigNumber(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int64
		wantErr  bool
	}{
		{"number literal", `42`, 42, false},
		{"decimal string", `"42"`, 42, false},
		{"leading zeros stay decimal", `"0100"`, 100, false},
		{"negative decimal", `"-7"`, -7, false},
		{"hex string", `"0x1f"`, 31, false},
		{"upper hex prefix", `"0X1F"`, 31, false},
		{"octal prefix is not special", `"0o17"`, 0, true},
		{"binary prefix is not special", `"0b101"`, 0, true},
		{"digit separators", `"1_000"`, 0, true},
		{"signed hex digits", `"0x-1"`, 0, true},
		{"bare hex prefix", `"0x"`, 0, true},
		{"empty string", `""`, 0, true},
		{"not a number", `"abc"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseBigNumber(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n.Int64())
		})
	}
}

func TestValueJSON_DecimalStrings(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"type":"cryptographic","value":"0100"}`), &v))
	assert.Equal(t, "100", v.Num.String())

	_, err := EntriesFromSimplifiedJSON([]byte(`{"n": {"int": "1_000"}}`))
	assert.Error(t, err)

	entries, err := EntriesFromSimplifiedJSON([]byte(`{"n": {"int": "0100"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(100), entries["n"].Num.Int64())
}

func TestValueJSON_PreservesWideIntegers(t *testing.T) {
	n, ok := new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495616", 10)
	require.True(t, ok)

	entries := Entries{
		"owner": NewCryptographic(n),
		"name":  NewString("x"),
		"b":     NewBoolean(true),
	}
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.Contains(t, string(data), n.String())

	var decoded Entries
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded["owner"].Equal(entries["owner"]))
	assert.True(t, decoded["b"].Equal(entries["b"]))
}

func TestContentIDHex(t *testing.T) {
	id, err := NewContentIDFromHex("0x00ab")
	require.NoError(t, err)
	assert.Equal(t, "ab", id.String())

	again, err := NewContentIDFromHex(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = NewContentIDFromHex("zz")
	assert.Error(t, err)
	_, err = NewContentIDFromHex("")
	assert.Error(t, err)
}

func TestTemplateRecord_DisplayInfo(t *testing.T) {
	rec := TemplateRecord{Entries: Entries{TitleEntry: NewString("A"), DescriptionEntry: NewString("B")}}
	name, desc, err := rec.DisplayInfo()
	require.NoError(t, err)
	assert.Equal(t, "A", name)
	assert.Equal(t, "B", desc)

	rec = TemplateRecord{Entries: Entries{TitleEntry: NewString("A")}}
	_, _, err = rec.DisplayInfo()
	assert.ErrorIs(t, err, ErrMissingDisplayEntries)
}
