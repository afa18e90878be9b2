package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsurePairExistsGeneratesLoadablePair(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "certs", "status.crt")
	key := filepath.Join(dir, "certs", "status.key")

	generated, err := EnsurePairExists(cert, key, []string{"localhost", "127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !generated {
		t.Fatalf("expected a new pair")
	}
	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		t.Fatalf("load pair: %v", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := leaf.VerifyHostname("localhost"); err != nil {
		t.Fatalf("dns name missing: %v", err)
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Fatalf("ip address missing: %v", err)
	}
	if st, _ := os.Stat(key); st.Mode().Perm() != 0o600 {
		t.Fatalf("key mode = %v", st.Mode().Perm())
	}
}

func TestEnsurePairExistsKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "a.crt")
	key := filepath.Join(dir, "a.key")
	if _, err := EnsurePairExists(cert, key, []string{"localhost"}, 0); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(cert)
	generated, err := EnsurePairExists(cert, key, []string{"other"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(cert)
	if generated || string(before) != string(after) {
		t.Fatalf("existing pair was replaced")
	}
}

func TestEnsurePairExistsRequiresPaths(t *testing.T) {
	if _, err := EnsurePairExists("", "x.key", nil, 0); err == nil {
		t.Fatalf("expected error")
	}
}
