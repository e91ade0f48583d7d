package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyXMLRoundTrip(t *testing.T) {
	kp := testKeyPair(t)

	encoded, err := MarshalPublicKeyXML(kp.Public)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "<RSAKeyValue><Modulus>"))
	assert.True(t, strings.HasSuffix(encoded, "<Exponent>AQAB</Exponent></RSAKeyValue>"))

	parsed, err := ParsePublicKeyXML(encoded)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Public.N.Cmp(parsed.N))
	assert.Equal(t, kp.Public.E, parsed.E)

	again, err := MarshalPublicKeyXML(parsed)
	require.NoError(t, err)
	assert.Equal(t, encoded, again, "public key export must round-trip byte for byte")
}

func TestPublicKeyXMLModulusLength(t *testing.T) {
	kp := testKeyPair(t)
	encoded, err := MarshalPublicKeyXML(kp.Public)
	require.NoError(t, err)

	start := strings.Index(encoded, "<Modulus>") + len("<Modulus>")
	end := strings.Index(encoded, "</Modulus>")
	raw, err := base64.StdEncoding.DecodeString(encoded[start:end])
	require.NoError(t, err)
	assert.Len(t, raw, kp.Public.Size())
}

func TestParsePublicKeyXMLToleratesWhitespace(t *testing.T) {
	kp := testKeyPair(t)
	encoded, err := MarshalPublicKeyXML(kp.Public)
	require.NoError(t, err)

	pretty := strings.Replace(encoded, "<Modulus>", "\n  <Modulus>\n", 1)
	pretty = "  " + pretty + "\n"

	parsed, err := ParsePublicKeyXML(pretty)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Public.N.Cmp(parsed.N))
}

func TestParsePublicKeyXMLIgnoresPrivateParts(t *testing.T) {
	kp := testKeyPair(t)
	full, err := MarshalPrivateKeyXML(kp.Private)
	require.NoError(t, err)

	pub, err := ParsePublicKeyXML(string(full))
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Public.N.Cmp(pub.N))
}

func TestParsePublicKeyXMLInvalid(t *testing.T) {
	inputs := []string{
		"",
		"not xml",
		"<RSAKeyValue></RSAKeyValue>",
		"<RSAKeyValue><Modulus>!!!</Modulus><Exponent>AQAB</Exponent></RSAKeyValue>",
		"<RSAKeyValue><Modulus>AQAB</Modulus></RSAKeyValue>",
		"<RSAKeyValue><Modulus>AQAB</Modulus><Exponent>AA==</Exponent></RSAKeyValue>",
		"<RSAKeyValue><Modulus>AQAB</Modulus><Exponent>AQAAAAAAAAAA</Exponent></RSAKeyValue>",
	}

	for _, in := range inputs {
		_, err := ParsePublicKeyXML(in)
		assert.ErrorIs(t, err, ErrInvalidKeyEncoding, "input %q", in)
	}
}

func TestPrivateKeyXMLRoundTrip(t *testing.T) {
	kp := testKeyPair(t)

	encoded, err := MarshalPrivateKeyXML(kp.Private)
	require.NoError(t, err)
	for _, element := range []string{"<P>", "<Q>", "<DP>", "<DQ>", "<InverseQ>", "<D>"} {
		assert.Contains(t, string(encoded), element)
	}

	parsed, err := ParsePrivateKeyXML(encoded)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Private.D.Cmp(parsed.D))
	assert.True(t, kp.Private.PublicKey.Equal(&parsed.PublicKey))

	again, err := MarshalPrivateKeyXML(parsed)
	require.NoError(t, err)
	assert.Equal(t, encoded, again)
}

func TestParsePrivateKeyXMLRejectsInconsistentKey(t *testing.T) {
	a := testKeyPair(t)
	b := freshPrivateKey(t)

	encoded, err := MarshalPrivateKeyXML(a.Private)
	require.NoError(t, err)

	// Splice b's D into a's document.
	doc := string(encoded)
	start := strings.Index(doc, "<D>") + len("<D>")
	end := strings.Index(doc, "</D>")
	doc = doc[:start] + encodeInt(b.D, b.Size()) + doc[end:]

	_, err = ParsePrivateKeyXML([]byte(doc))
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
}

func TestParsePrivateKeyXMLGarbage(t *testing.T) {
	_, err := ParsePrivateKeyXML([]byte{0x00, 0xFF, 0x10})
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)

	kp := testKeyPair(t)
	pubOnly, err := MarshalPublicKeyXML(kp.Public)
	require.NoError(t, err)
	_, err = ParsePrivateKeyXML([]byte(pubOnly))
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
}

func TestFingerprint(t *testing.T) {
	kp := testKeyPair(t)
	fp := Fingerprint(kp.Public)
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint(&kp.Private.PublicKey))
	assert.Equal(t, "none", Fingerprint(nil))
}
