package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// Auth holds the two credentials the venue's query-string HMAC scheme
// needs: an API key travelling in a header and a secret used to sign the
// request. There is no on-chain wallet involved — the venue here is a
// plain spot-market REST API, not an on-chain CLOB, so the signing scheme
// is grounded on the query-string HMAC convention shared by Binance-style
// venues rather than the teacher's EIP-712 L1/L2 scheme.
type Auth struct {
	apiKey string
	secret string
}

// NewAuth creates an Auth from the two credentials the spec's Environment
// section names.
func NewAuth(apiKey, secret string) *Auth {
	return &Auth{apiKey: apiKey, secret: secret}
}

// APIKey returns the key that travels in the X-API-KEY header.
func (a *Auth) APIKey() string {
	return a.apiKey
}

// Sign computes the HMAC-SHA256 signature over the request's query
// string, hex-encoded, matching the venue's documented signing
// convention: timestamp and recv_window are part of the signed payload.
func (a *Auth) Sign(q url.Values) string {
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(q.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}
