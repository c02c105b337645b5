package signature_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	kp, err := signature.HexToKeyPair(pkHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
	}
	t.Logf("\t%s\tShould be able to generate a private key.", success)

	data := []byte("bill sent 1024 units to ed")

	sig, err := signature.Sign(kp.Private, data)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign data: %s", failed, err)
	}
	t.Logf("\t%s\tShould be able to sign data.", success)

	if !signature.Verify(kp.PublicKey, data, sig) {
		t.Fatalf("\t%s\tShould be able to verify the signature.", failed)
	}
	t.Logf("\t%s\tShould be able to verify the signature.", success)

	if signature.Verify(kp.PublicKey, []byte("bill sent 1025 units to ed"), sig) {
		t.Fatalf("\t%s\tShould reject the signature for different data.", failed)
	}
	t.Logf("\t%s\tShould reject the signature for different data.", success)

	other, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a second key: %s", failed, err)
	}

	if signature.Verify(other.PublicKey, data, sig) {
		t.Fatalf("\t%s\tShould reject the signature under a different key.", failed)
	}
	t.Logf("\t%s\tShould reject the signature under a different key.", success)
}

func Test_PublicKey(t *testing.T) {
	type table struct {
		name  string
		input []byte
		valid bool
	}

	kp, err := signature.HexToKeyPair(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	tt := []table{
		{name: "good", input: kp.PublicKey[:], valid: true},
		{name: "short", input: kp.PublicKey[:20], valid: false},
		{name: "zero", input: make([]byte, signature.PublicKeyLength), valid: false},
		{name: "badprefix", input: append([]byte{0x05}, kp.PublicKey[1:]...), valid: false},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			if got := signature.ValidPublicKey(tst.input); got != tst.valid {
				t.Logf("Test %s:\tgot: %v", tst.name, got)
				t.Logf("Test %s:\texp: %v", tst.name, tst.valid)
				t.Fatalf("Test %s:\tShould get back the right validity.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}

	pk, err := signature.ToPublicKey(kp.PublicKey.String())
	if err != nil {
		t.Fatalf("Should be able to parse the hex public key: %s", err)
	}

	if pk != kp.PublicKey {
		t.Logf("got: %s", pk)
		t.Logf("exp: %s", kp.PublicKey)
		t.Fatalf("Should get back the same public key.")
	}

	if len(kp.PublicKey.Mid()) != 8 {
		t.Fatalf("Should get back an 8 character mid, got %q.", kp.PublicKey.Mid())
	}
}

func Test_KeyFiles(t *testing.T) {
	kp, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}

	path := filepath.Join(t.TempDir(), "node.ecdsa")
	if err := signature.SaveKeyPair(path, kp); err != nil {
		t.Fatalf("Should be able to save the key: %s", err)
	}

	loaded, err := signature.LoadKeyPair(path)
	if err != nil {
		t.Fatalf("Should be able to load the key: %s", err)
	}

	if loaded.PublicKey != kp.PublicKey {
		t.Logf("got: %s", loaded.PublicKey)
		t.Logf("exp: %s", kp.PublicKey)
		t.Fatalf("Should load back the same identity.")
	}
}
