// Package multisig verifies that a weighted set of secp256k1 keys approved a
// privileged action.
package multisig

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// signatureLength is r || s || v.
const signatureLength = 65

// Policy is a weighted threshold over compressed public keys.
type Policy struct {
	keys      [][]byte
	weights   []uint8
	threshold uint16
	address   common.Address
}

// NewPolicy parses hex-encoded compressed or uncompressed public keys.
func NewPolicy(publicKeysHex []string, weights []uint8, threshold uint16) (*Policy, error) {
	if len(publicKeysHex) == 0 {
		return nil, fmt.Errorf("multisig: at least one public key required")
	}
	if len(publicKeysHex) != len(weights) {
		return nil, fmt.Errorf("multisig: %d keys but %d weights", len(publicKeysHex), len(weights))
	}
	if threshold == 0 {
		return nil, fmt.Errorf("multisig: threshold must be positive")
	}

	p := &Policy{threshold: threshold}
	var total uint32
	for i, raw := range publicKeysHex {
		key, err := parsePublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("multisig: key %d: %w", i, err)
		}
		compressed := ethcrypto.CompressPubkey(key)
		for _, existing := range p.keys {
			if bytes.Equal(existing, compressed) {
				return nil, fmt.Errorf("multisig: duplicate key %d", i)
			}
		}
		if weights[i] == 0 {
			return nil, fmt.Errorf("multisig: key %d has zero weight", i)
		}
		p.keys = append(p.keys, compressed)
		p.weights = append(p.weights, weights[i])
		total += uint32(weights[i])
	}
	if total < uint32(threshold) {
		return nil, fmt.Errorf("multisig: total weight %d below threshold %d", total, threshold)
	}
	p.address = deriveAddress(p.keys, p.weights, threshold)
	return p, nil
}

func parsePublicKey(raw string) (*ecdsa.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) == 33 {
		return ethcrypto.DecompressPubkey(b)
	}
	return ethcrypto.UnmarshalPubkey(b)
}

// deriveAddress hashes the threshold, keys and weights so the policy has a
// stable identity independent of how it was configured.
func deriveAddress(keys [][]byte, weights []uint8, threshold uint16) common.Address {
	var buf bytes.Buffer
	buf.WriteByte(0x03)
	_ = binary.Write(&buf, binary.LittleEndian, threshold)
	for i, key := range keys {
		buf.Write(key)
		buf.WriteByte(weights[i])
	}
	return common.BytesToAddress(ethcrypto.Keccak256(buf.Bytes())[12:])
}

func (p *Policy) Address() common.Address {
	return p.address
}

func (p *Policy) Threshold() uint16 {
	return p.threshold
}

// Verify recovers a signer from each signature and sums the weights of
// distinct policy members. It fails with domain.ErrUnauthorized when the sum
// stays below the threshold.
func (p *Policy) Verify(digest []byte, signatures [][]byte) error {
	if len(digest) != 32 {
		return domain.Wrapf(domain.ErrUnauthorized, "digest must be 32 bytes")
	}
	seen := make(map[int]struct{}, len(signatures))
	var weight uint32
	for _, sig := range signatures {
		idx, err := p.signer(digest, sig)
		if err != nil {
			return err
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		weight += uint32(p.weights[idx])
	}
	if weight < uint32(p.threshold) {
		return domain.Wrapf(domain.ErrUnauthorized, "approved weight %d below threshold %d", weight, p.threshold)
	}
	return nil
}

func (p *Policy) signer(digest, sig []byte) (int, error) {
	if len(sig) != signatureLength {
		return -1, domain.Wrapf(domain.ErrUnauthorized, "signature must be %d bytes", signatureLength)
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return -1, domain.Wrapf(domain.ErrUnauthorized, "recover signer: %v", err)
	}
	compressed := ethcrypto.CompressPubkey(pub)
	for i, key := range p.keys {
		if bytes.Equal(key, compressed) {
			return i, nil
		}
	}
	return -1, domain.Wrapf(domain.ErrUnauthorized, "signer %s not in policy", ethcrypto.PubkeyToAddress(*pub).Hex())
}

// Sign produces an r || s || v signature with v in {27, 28}.
func Sign(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("multisig: sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Digest binds an action name, the ticket it consumes and its parameters.
func Digest(action, ticketID, params string) []byte {
	return ethcrypto.Keccak256([]byte(strings.Join([]string{"router-admin", action, ticketID, params}, "|")))
}

// DecodeSignatures parses hex signatures as sent over HTTP.
func DecodeSignatures(raw []string) ([][]byte, error) {
	out := make([][]byte, 0, len(raw))
	for i, s := range raw {
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
		if err != nil {
			return nil, domain.Wrapf(domain.ErrUnauthorized, "signature %d: %v", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
