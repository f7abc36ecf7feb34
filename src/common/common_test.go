package common

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

func TestIsStore(t *testing.T) {
	err := NewStoreErr("Session", KeyNotFound, "abc")

	if !IsStore(err, KeyNotFound) {
		t.Fatalf("IsStore should match KeyNotFound")
	}

	if IsStore(err, KeyAlreadyExists) {
		t.Fatalf("IsStore should not match KeyAlreadyExists")
	}

	wrapped := errors.Wrap(err, "loading session")
	if !IsStore(wrapped, KeyNotFound) {
		t.Fatalf("IsStore should see through pkg/errors wrapping")
	}

	if IsStore(fmt.Errorf("plain"), KeyNotFound) {
		t.Fatalf("IsStore should not match a plain error")
	}
}

func TestHexRoundTrip(t *testing.T) {
	data := []byte{0x04, 0xab, 0xcd}

	s := EncodeToString(data)
	if s != "0X04ABCD" {
		t.Fatalf("EncodeToString should be 0X04ABCD, not %s", s)
	}

	for _, in := range []string{s, "0x04abcd", "04abcd"} {
		out, err := DecodeFromString(in)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if string(out) != string(data) {
			t.Fatalf("DecodeFromString(%s) = %X", in, out)
		}
	}
}
