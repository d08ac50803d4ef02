package multisig

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func newKeys(t *testing.T, n int) ([]*ecdsa.PrivateKey, []string) {
	t.Helper()
	var keys []*ecdsa.PrivateKey
	var pubs []string
	for i := 0; i < n; i++ {
		k, err := ethcrypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		keys = append(keys, k)
		pubs = append(pubs, "0x"+hex.EncodeToString(ethcrypto.CompressPubkey(&k.PublicKey)))
	}
	return keys, pubs
}

func sign(t *testing.T, digest []byte, keys ...*ecdsa.PrivateKey) [][]byte {
	t.Helper()
	var sigs [][]byte
	for _, k := range keys {
		sig, err := Sign(digest, k)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs
}

func TestVerifyThreshold(t *testing.T) {
	keys, pubs := newKeys(t, 3)
	policy, err := NewPolicy(pubs, []uint8{1, 1, 2}, 3)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	digest := Digest("withdraw_reserve", "ticket-1", "100")

	if err := policy.Verify(digest, sign(t, digest, keys[0], keys[2])); err != nil {
		t.Fatalf("expected approval: %v", err)
	}
	if err := policy.Verify(digest, sign(t, digest, keys[0], keys[1])); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyIgnoresDuplicateSigner(t *testing.T) {
	keys, pubs := newKeys(t, 2)
	policy, err := NewPolicy(pubs, []uint8{1, 1}, 2)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	digest := Digest("enable_version", "ticket-2", "2")
	if err := policy.Verify(digest, sign(t, digest, keys[0], keys[0])); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("same key twice must count once, got %v", err)
	}
}

func TestVerifyRejectsOutsider(t *testing.T) {
	_, pubs := newKeys(t, 1)
	outsiders, _ := newKeys(t, 1)
	policy, err := NewPolicy(pubs, []uint8{1}, 1)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	digest := Digest("withdraw_reserve", "ticket-3", "1")
	if err := policy.Verify(digest, sign(t, digest, outsiders[0])); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected outsider rejection, got %v", err)
	}
}

func TestVerifyBindsParams(t *testing.T) {
	keys, pubs := newKeys(t, 1)
	policy, err := NewPolicy(pubs, []uint8{1}, 1)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	signed := Digest("withdraw_reserve", "ticket-4", "100")
	other := Digest("withdraw_reserve", "ticket-4", "1000")
	if err := policy.Verify(other, sign(t, signed, keys[0])); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("signature over different params must fail, got %v", err)
	}
}

func TestNewPolicyValidation(t *testing.T) {
	_, pubs := newKeys(t, 2)
	if _, err := NewPolicy(pubs, []uint8{1}, 1); err == nil {
		t.Fatalf("expected weight count mismatch")
	}
	if _, err := NewPolicy(pubs, []uint8{1, 1}, 3); err == nil {
		t.Fatalf("expected unreachable threshold")
	}
	if _, err := NewPolicy([]string{pubs[0], pubs[0]}, []uint8{1, 1}, 1); err == nil {
		t.Fatalf("expected duplicate key rejection")
	}
	if _, err := NewPolicy([]string{"zz"}, []uint8{1}, 1); err == nil {
		t.Fatalf("expected bad hex rejection")
	}
}

func TestPolicyAddressStable(t *testing.T) {
	_, pubs := newKeys(t, 2)
	a, err := NewPolicy(pubs, []uint8{1, 2}, 2)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	b, err := NewPolicy(pubs, []uint8{1, 2}, 2)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	c, err := NewPolicy(pubs, []uint8{1, 2}, 3)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if a.Address() != b.Address() {
		t.Fatalf("same policy must derive same address")
	}
	if a.Address() == c.Address() {
		t.Fatalf("different threshold must derive different address")
	}
}
