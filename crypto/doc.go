// Package crypto implements the key lifecycle and message confidentiality
// primitives of securemsg.
//
// # Overview
//
// Every account owns one RSA key pair. The public key is stored in the clear as
// an RSAKeyValue XML document; the private key only ever touches disk inside an
// [Envelope] sealed under the user's passphrase. Messages are encrypted one shot
// with RSA-OAEP (SHA-256), so their size is bounded by the modulus.
//
// # Passphrase Protection
//
// [DeriveKey] runs PBKDF2-HMAC-SHA256 with [PBKDF2Iterations] rounds over a
// 32-byte random salt. [Seal] uses the derived key with AES-256-CBC and PKCS#7
// padding; every call draws a fresh salt and IV:
//
//	env, err := crypto.SealPrivateKey(keyPair.Private, passphrase)
//	data, err := crypto.MarshalEnvelope(env) // {"Salt":..,"IV":..,"CipherText":..}
//
// There is no separate passphrase verifier. [UnlockPrivateKey] reports
// [ErrInvalidCredentials] when the padding is wrong or the recovered bytes do
// not parse as a consistent RSA key:
//
//	priv, err := crypto.UnlockPrivateKey(env, passphrase)
//	if errors.Is(err, crypto.ErrInvalidCredentials) {
//	    // ask again
//	}
//
// # Message Encryption
//
//	ciphertext, err := crypto.Encrypt(plaintext, recipientPublicKey)
//	if errors.Is(err, crypto.ErrPayloadTooLarge) {
//	    // plaintext exceeds crypto.MaxPlaintextSize(recipientPublicKey)
//	}
//	plaintext, err := crypto.Decrypt(ciphertext, priv) // ErrDecryptionFailed on mismatch
//
// # Key Encoding
//
// [MarshalPublicKeyXML] and [ParsePublicKeyXML] use the .NET RSAKeyValue layout
// (<Modulus>, <Exponent>, base64 big-endian). Export is byte-stable, so a
// document produced here parses and re-exports to the same string.
//
// # Memory Hygiene
//
// Derived keys and decrypted key documents are wiped with [ZeroBytes] once
// used. [WipePrivateKey] clears an unlocked key when a session ends.
package crypto
