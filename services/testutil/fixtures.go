package testutil

import (
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/auth"
)

const (
	AliceAddress = "0xa11ce"
	BobAddress   = "0xb0b"
)

// GenerateJWT signs an owner token for the wallet address.
func GenerateJWT(address string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	return auth.IssueToken(address, secret, ttl, now)
}
