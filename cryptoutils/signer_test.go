package cryptoutils

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() interfaces.Entries {
	return interfaces.Entries{
		interfaces.TitleEntry:       interfaces.NewString("A"),
		interfaces.DescriptionEntry: interfaces.NewString("B"),
		"level":                     interfaces.NewInt(-7),
	}
}

func TestComputeContentID_Deterministic(t *testing.T) {
	id1, err := ComputeContentID(testEntries())
	require.NoError(t, err)
	id2, err := ComputeContentID(testEntries())
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	changed := testEntries()
	changed["level"] = interfaces.NewInt(8)
	id3, err := ComputeContentID(changed)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)

	// Same digits, different type.
	typed := testEntries()
	typed["level"] = interfaces.NewString("-7")
	id4, err := ComputeContentID(typed)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id4)
}

func TestComputeContentID_RejectsInvalid(t *testing.T) {
	_, err := ComputeContentID(interfaces.Entries{})
	assert.Error(t, err)

	_, err = ComputeContentID(interfaces.Entries{"owner": interfaces.NewString("x")})
	assert.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSignerFromSeed(bytes.Repeat([]byte{1}, SeedSize))
	require.NoError(t, err)

	pod, err := signer.Sign(testEntries())
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey(), pod.SignerPublicKey)

	ok, err := pod.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	expectedID, err := ComputeContentID(testEntries())
	require.NoError(t, err)
	assert.Equal(t, expectedID, pod.ContentID)

	// Tampering with an entry invalidates the signature.
	pod.Entries["level"] = interfaces.NewInt(100)
	ok, err = pod.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_DeterministicFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{9}, SeedSize)
	s1, err := NewSignerFromSeed(seed)
	require.NoError(t, err)
	s2, err := NewSignerFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, s1.PublicKey(), s2.PublicKey())

	_, err = NewSignerFromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeSeed(t *testing.T) {
	hexSeed := "0x" + "01020304050607080910111213141516171819202122232425262728293031ff"
	b, err := DecodeSeed(hexSeed)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = DecodeSeed("AQIDBAUGBwgJEBESExQVFhcYGSAhIiMkJSYnKCkwMf8=")
	require.NoError(t, err)
	assert.Len(t, b, 32)

	_, err = DecodeSeed("")
	assert.Error(t, err)
	_, err = DecodeSeed("not a key!")
	assert.Error(t, err)
}

func TestSerializePODPCD(t *testing.T) {
	signer, err := NewSignerFromSeed(bytes.Repeat([]byte{2}, SeedSize))
	require.NoError(t, err)

	entries := testEntries()
	entries[interfaces.OwnerEntry] = interfaces.NewCryptographic(big.NewInt(12345))
	pod, err := signer.Sign(entries)
	require.NoError(t, err)

	serialized, err := SerializePODPCD(pod)
	require.NoError(t, err)
	assert.Equal(t, PODPCDType, serialized.Type)

	id, decoded, err := DeserializePODPCD(serialized)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ok, err := decoded.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	owner, ok := decoded.Owner()
	require.True(t, ok)
	assert.Equal(t, int64(12345), owner.Int64())
}

func TestStringHash_InField(t *testing.T) {
	h := StringHash("zupass_title")
	assert.True(t, h.BitLen() <= 248)
}
