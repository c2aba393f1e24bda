package crypto

import (
	"encoding/hex"
	"fmt"
	"testing"

	b58 "github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
)

var (
	testSeed       string = "3ac371907afa714b434af49b7a215fd1010d8561c22ef987a47e078549ef21a9"
	testPublicKey  string = "9f6a604c5091f713584f2b9e48d0497106bc70335914f0d19c6df3b7b038e01b"
	testPrivateKey string = "3ac371907afa714b434af49b7a215fd1010d8561c22ef987a47e078549ef21a99f6a604c5091f713584f2b9e48d0497106bc70335914f0d19c6df3b7b038e01b"
	testSignature  string = "930a1a48958f2393e75a6844d4555a43244cedb321d86ad35c9342db8818fd1330e40f63555ed8c0e5cb1fb2a61cbb91ffb2fb9dd80f2229ef96373520d2940d"
	testData       string = "ultiledger is awesome!"
)

// encodeHexKey wraps the hex-encoded 32-byte key h in a base58 ULTKey of
// type code, the form getPrivateKey, Sign and Verify take.
func encodeHexKey(t *testing.T, code KeyType, h string) string {
	raw, err := hex.DecodeString(h)
	assert.Equal(t, nil, err)
	k := ULTKey{Code: code}
	copy(k.Hash[:], raw)
	return EncodeKey(&k)
}

// test random generation of an account keypair
func TestKeypair(t *testing.T) {
	_, _, err := GetAccountKeypair()
	assert.Equal(t, nil, err)
}

// test get privagte key from seed
func TestPrivateKey(t *testing.T) {
	pk, err := getPrivateKey(encodeHexKey(t, KeyTypeSeed, testSeed))
	assert.Equal(t, nil, err)
	assert.Equal(t, testPrivateKey, fmt.Sprintf("%x", pk))
}

// test data signing and verification; Sign returns the signature in
// base58, compared here against its hex form
func TestSignAndVerify(t *testing.T) {
	signature, err := Sign(encodeHexKey(t, KeyTypeSeed, testSeed), []byte(testData))
	assert.Equal(t, nil, err)
	sig, err := b58.Decode(signature)
	assert.Equal(t, nil, err)
	assert.Equal(t, testSignature, fmt.Sprintf("%x", sig))
	assert.Equal(t, true, Verify(encodeHexKey(t, KeyTypeAccountID, testPublicKey), signature, []byte(testData)))
}
