package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"math/big"
	"strings"
)

// minParseBits is the smallest modulus accepted from a peer's key document.
const minParseBits = 1024

// rsaKeyValue mirrors the RSAKeyValue document produced by .NET's
// RSA.ToXmlString. Element order is significant for byte-exact output.
type rsaKeyValue struct {
	XMLName  xml.Name `xml:"RSAKeyValue"`
	Modulus  string   `xml:"Modulus"`
	Exponent string   `xml:"Exponent"`
	P        string   `xml:"P,omitempty"`
	Q        string   `xml:"Q,omitempty"`
	DP       string   `xml:"DP,omitempty"`
	DQ       string   `xml:"DQ,omitempty"`
	InverseQ string   `xml:"InverseQ,omitempty"`
	D        string   `xml:"D,omitempty"`
}

// MarshalPublicKeyXML encodes a public key as an RSAKeyValue document.
// The modulus is written at its full byte length.
func MarshalPublicKeyXML(pub *rsa.PublicKey) (string, error) {
	if pub == nil || pub.N == nil {
		return "", ErrKeyMaterialMissing
	}
	doc := rsaKeyValue{
		Modulus:  encodeInt(pub.N, pub.Size()),
		Exponent: encodeInt(big.NewInt(int64(pub.E)), 0),
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return string(out), nil
}

// ParsePublicKeyXML decodes an RSAKeyValue document. Private elements, if
// present, are ignored.
func ParsePublicKeyXML(data string) (*rsa.PublicKey, error) {
	var doc rsaKeyValue
	if err := xml.Unmarshal([]byte(strings.TrimSpace(data)), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	return doc.publicKey()
}

// MarshalPrivateKeyXML encodes a full private key. D is padded to the modulus
// length and the CRT values to half of it, as .NET does.
func MarshalPrivateKeyXML(priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil || priv.N == nil || len(priv.Primes) != 2 {
		return nil, ErrKeyMaterialMissing
	}
	priv.Precompute()

	size := priv.Size()
	half := (size + 1) / 2
	doc := rsaKeyValue{
		Modulus:  encodeInt(priv.N, size),
		Exponent: encodeInt(big.NewInt(int64(priv.E)), 0),
		P:        encodeInt(priv.Primes[0], half),
		Q:        encodeInt(priv.Primes[1], half),
		DP:       encodeInt(priv.Precomputed.Dp, half),
		DQ:       encodeInt(priv.Precomputed.Dq, half),
		InverseQ: encodeInt(priv.Precomputed.Qinv, half),
		D:        encodeInt(priv.D, size),
	}
	return xml.Marshal(doc)
}

// ParsePrivateKeyXML decodes and validates a full private key document.
func ParsePrivateKeyXML(data []byte) (*rsa.PrivateKey, error) {
	var doc rsaKeyValue
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}

	pub, err := doc.publicKey()
	if err != nil {
		return nil, err
	}

	d, err := decodeInt(doc.D, "D")
	if err != nil {
		return nil, err
	}
	p, err := decodeInt(doc.P, "P")
	if err != nil {
		return nil, err
	}
	q, err := decodeInt(doc.Q, "Q")
	if err != nil {
		return nil, err
	}

	priv := &rsa.PrivateKey{PublicKey: *pub, D: d, Primes: []*big.Int{p, q}}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	priv.Precompute()
	return priv, nil
}

// Fingerprint returns a short hex identifier of a public key for logs.
func Fingerprint(pub *rsa.PublicKey) string {
	if pub == nil || pub.N == nil {
		return "none"
	}
	sum := sha256.Sum256(pub.N.Bytes())
	return hex.EncodeToString(sum[:8])
}

func (doc *rsaKeyValue) publicKey() (*rsa.PublicKey, error) {
	n, err := decodeInt(doc.Modulus, "Modulus")
	if err != nil {
		return nil, err
	}
	if n.BitLen() < minParseBits {
		return nil, fmt.Errorf("%w: %d-bit modulus", ErrInvalidKeyEncoding, n.BitLen())
	}
	e, err := decodeInt(doc.Exponent, "Exponent")
	if err != nil {
		return nil, err
	}
	if e.BitLen() > 31 || e.Int64() < 3 {
		return nil, fmt.Errorf("%w: unsupported exponent", ErrInvalidKeyEncoding)
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func encodeInt(n *big.Int, size int) string {
	if size > 0 && (n.BitLen()+7)/8 <= size {
		return base64.StdEncoding.EncodeToString(n.FillBytes(make([]byte, size)))
	}
	return base64.StdEncoding.EncodeToString(n.Bytes())
}

// decodeInt tolerates whitespace, which pasted keys often carry.
func decodeInt(value, element string) (*big.Int, error) {
	compact := strings.Join(strings.Fields(value), "")
	if compact == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidKeyEncoding, element)
	}
	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKeyEncoding, element, err)
	}
	n := new(big.Int).SetBytes(raw)
	if n.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s is zero", ErrInvalidKeyEncoding, element)
	}
	return n, nil
}
