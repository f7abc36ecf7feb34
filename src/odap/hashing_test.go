package odap

import (
	"strings"
	"testing"

	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/crypto/keys"
)

func newCommence(t *testing.T) (*TransferCommenceRequest, *keys.Identity, *keys.Identity) {
	client, err := keys.GenerateIdentity()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	server, err := keys.GenerateIdentity()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	msg := &TransferCommenceRequest{
		Header: Header{
			MessageType:          TypeCommenceRequest,
			SessionID:            "session",
			SequenceNumber:       8,
			ClientIdentityPubKey: client.PublicKeyHex(),
			ServerIdentityPubKey: server.PublicKeyHex(),
			HashPrevMessage:      "abcd",
		},
		SourceGatewayDLTSystem:    "DLT1",
		RecipientGatewayDLTSystem: "DLT2",
		HashAssetProfile:          "ef01",
		Timestamp:                 1000,
	}

	return msg, client, server
}

func TestSignVerify(t *testing.T) {
	msg, client, server := newCommence(t)

	if err := Sign(msg, client); err != nil {
		t.Fatalf("err: %v", err)
	}

	if msg.Signature == "" {
		t.Fatalf("Sign should set the signature")
	}

	if !Verify(msg, client.PublicKeyHex()) {
		t.Fatalf("message should verify against the client key")
	}

	if Verify(msg, server.PublicKeyHex()) {
		t.Fatalf("message should not verify against the server key")
	}

	if SenderPubKey(msg) != client.PublicKeyHex() {
		t.Fatalf("requests are signed by the client")
	}

	msg.HashAssetProfile = "tampered"
	if Verify(msg, client.PublicKeyHex()) {
		t.Fatalf("tampered message should not verify")
	}
}

func TestDigestCoversSignature(t *testing.T) {
	msg, client, _ := newCommence(t)

	unsigned, err := Digest(msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	Sign(msg, client)

	signed, err := Digest(msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if unsigned == signed {
		t.Fatalf("digest should include the signature")
	}

	again, _ := Digest(msg)
	if again != signed {
		t.Fatalf("digest should be stable")
	}
}

func TestHeaderIsInlined(t *testing.T) {
	msg, _, _ := newCommence(t)

	b, err := crypto.CanonicalJSON(msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !strings.Contains(string(b), `"messageType":"urn:ietf:odap:msgtype:transfer-commence-msg"`) {
		t.Fatalf("header fields should be inlined, got %s", b)
	}

	var out TransferCommenceRequest
	if err := crypto.DecodeJSON(b, &out); err != nil {
		t.Fatalf("err: %v", err)
	}

	d1, _ := Digest(msg)
	d2, _ := Digest(&out)
	if d1 != d2 {
		t.Fatalf("decoded message should have the same digest")
	}
}

func TestPhaseOf(t *testing.T) {
	cases := map[MessageType]Phase{
		TypeInitRequest:           PhaseInitialization,
		TypeInitResponse:          PhaseInitialization,
		TypeLockEvidenceResponse:  PhaseLock,
		TypeCommitPrepareResponse: PhasePrepare,
		TypeCommitFinalResponse:   PhaseFinal,
		TypeTransferComplete:      PhaseComplete,
		TypeRollback:              PhaseRecovery,
	}

	for mt, p := range cases {
		if PhaseOf(mt) != p {
			t.Fatalf("PhaseOf(%s) should be %s, not %s", mt, p, PhaseOf(mt))
		}
	}
}
