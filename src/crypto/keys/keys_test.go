package keys

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mosaicnetworks/satp/src/crypto"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(filepath.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateECDSAKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if nKey.D.Cmp(key.D) != 0 || nKey.X.Cmp(key.X) != 0 || nKey.Y.Cmp(key.Y) != 0 {
		t.Fatalf("Keys do not match")
	}

	if err := simpleKeyfile.WriteKey(key); err == nil {
		t.Fatalf("WriteKey should not overwrite an existing key")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, _ := GenerateECDSAKey()
	rawKey := PrivateKeyHex(key)

	shouldErr := []os.FileMode{0777, 0766, 0744, 0644, 0640, 0604}

	for i, fm := range shouldErr {
		p := filepath.Join(dir, "bad_"+string(rune('a'+i)))
		if err := os.WriteFile(p, []byte(rawKey), fm); err != nil {
			t.Fatalf("err: %v", err)
		}
		os.Chmod(p, fm)

		if _, err := NewSimpleKeyfile(p).ReadKey(); err == nil {
			t.Fatalf("%o || ReadKey should return permissions error", fm)
		}
	}

	shouldNotErr := []os.FileMode{0700, 0600, 0400}

	for i, fm := range shouldNotErr {
		p := filepath.Join(dir, "good_"+string(rune('a'+i)))
		if err := os.WriteFile(p, []byte(rawKey), fm); err != nil {
			t.Fatalf("err: %v", err)
		}
		os.Chmod(p, fm)

		if _, err := NewSimpleKeyfile(p).ReadKey(); err != nil {
			t.Fatalf("%o || ReadKey should not return error. Got %v", fm, err)
		}
	}
}

func TestSignVerify(t *testing.T) {
	privKey, _ := GenerateECDSAKey()
	otherKey, _ := GenerateECDSAKey()

	digest := crypto.SHA256([]byte("J'aime mieux forger mon ame que la meubler"))

	sig, err := Sign(privKey, digest)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(sig) != 128 {
		t.Fatalf("signature should have 128 hex characters, not %d", len(sig))
	}

	again, _ := Sign(privKey, digest)
	if again != sig {
		t.Fatalf("signatures should be deterministic")
	}

	if !Verify(&privKey.PublicKey, digest, sig) {
		t.Fatalf("signature should verify")
	}

	if Verify(&otherKey.PublicKey, digest, sig) {
		t.Fatalf("signature should not verify with another key")
	}

	if Verify(&privKey.PublicKey, crypto.SHA256([]byte("other")), sig) {
		t.Fatalf("signature should not verify another digest")
	}

	if Verify(&privKey.PublicKey, digest, "zz") {
		t.Fatalf("malformed signature should not verify")
	}
}

func TestSignatureEncoding(t *testing.T) {
	privKey, _ := GenerateECDSAKey()
	digest := crypto.SHA256([]byte("payload"))

	sig, _ := Sign(privKey, digest)

	r, s, err := DecodeSignature(sig)
	if err != nil {
		t.Fatal(err)
	}

	if EncodeSignature(r, s) != sig {
		t.Fatalf("EncodeSignature(DecodeSignature(sig)) should be sig")
	}

	if _, _, err := DecodeSignature(sig[:10]); err == nil {
		t.Fatalf("short signature should not decode")
	}
}

func TestPublicKeyHex(t *testing.T) {
	key, _ := GenerateECDSAKey()

	pubHex := PublicKeyHex(&key.PublicKey)
	if !strings.HasPrefix(pubHex, "0X04") {
		t.Fatalf("public key should be uncompressed with 0X prefix, got %s", pubHex)
	}

	pub, err := ParsePublicKeyHex(pubHex)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(FromPublicKey(pub), FromPublicKey(&key.PublicKey)) {
		t.Fatalf("parsed public key differs")
	}

	if _, err := ParsePublicKeyHex("0X0400"); err == nil {
		t.Fatalf("invalid point should not parse")
	}
}

func TestIdentityDoesNotLeakKey(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	priv := PrivateKeyHex(id.key)

	out, err := json.Marshal(struct{ ID *Identity }{id})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if strings.Contains(string(out), priv) || strings.Contains(id.String(), priv) {
		t.Fatalf("identity encoding leaks the private key")
	}

	if !strings.Contains(string(out), id.PublicKeyHex()) {
		t.Fatalf("identity encoding should contain the public key")
	}

	digest := crypto.SHA256([]byte("x"))
	sig, _ := id.Sign(digest)
	if !Verify(id.PublicKey(), digest, sig) {
		t.Fatalf("identity signature should verify")
	}
}
