package signature_test

import (
	"testing"

	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// =============================================================================

func Test_Signing(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	sig, err := signature.Sign(value, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	publicKey := signature.PublicKeyString(pk.PublicKey)

	if err := signature.Verify(value, publicKey, sig); err != nil {
		t.Fatalf("Should be able to verify the signature: %s", err)
	}

	other := struct {
		Name string
	}{
		Name: "Jill",
	}

	if err := signature.Verify(other, publicKey, sig); err == nil {
		t.Fatalf("Should not verify a signature against different data.")
	}

	pk2, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	if err := signature.Verify(value, signature.PublicKeyString(pk2.PublicKey), sig); err == nil {
		t.Fatalf("Should not verify a signature against a different public key.")
	}
}

func Test_Hash(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}
	hash := "0x0f6887ac85101d6d6425a617edf35bd721b5f619fb92c36c3d2224e3bdb0ee5a"

	h := signature.Hash(value)
	if h != hash {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", hash)
		t.Fatalf("Should get back the right hash: %s", h[:6])
	}

	h = signature.Hash(value)
	if h != hash {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", hash)
		t.Fatalf("Should get back the same hash twice.")
	}
}

func Test_PublicKeyString(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	addr1 := signature.PublicKeyString(pk.PublicKey)
	addr2 := signature.PublicKeyString(pk.PublicKey)

	if addr1 != addr2 {
		t.Errorf("Got: %s", addr1)
		t.Errorf("Got: %s", addr2)
		t.Fatalf("Should produce the same address for the same key.")
	}

	if len(addr1) != 2+65*2 {
		t.Fatalf("Should produce a 65 byte uncompressed key address, got len %d.", len(addr1))
	}
}
