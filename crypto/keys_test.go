package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, 20)
	addr := NewAddress(PMPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(PMPrefix)+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != PMPrefix {
		t.Fatalf("prefix %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("decoded bytes %x", decoded.Bytes())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not-bech32", "pm1qqqq", "PM1MIXEDcase"} {
		if _, err := DecodeAddress(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	created, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("key file permissions %o", perm)
	}

	loaded, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), created.Bytes()) {
		t.Fatalf("loaded key differs from created key")
	}

	corrupt := filepath.Join(t.TempDir(), "node.key")
	if err := os.WriteFile(corrupt, []byte("not hex"), 0o600); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	if _, err := LoadOrCreateKey(corrupt); err == nil {
		t.Fatalf("corrupt key file must be rejected")
	}
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !bytes.Equal(restored.Bytes(), key.Bytes()) {
		t.Fatalf("restored key differs")
	}

	addr := key.PubKey().Address()
	if len(addr.Bytes()) != 20 {
		t.Fatalf("address length %d", len(addr.Bytes()))
	}
	if addr.Prefix() != PMPrefix {
		t.Fatalf("prefix %q", addr.Prefix())
	}
}
