// Package ids generates compact, time-ordered, sortable identifiers for
// baskets. No library in the dependency set produces an identifier that
// fits the spec's dual budget (basket id <= ~22 chars, and the basket id
// must still leave room for "pair_" + "_B_NN" inside a 36-char client
// order id) so the generator is hand-rolled: a millisecond timestamp and a
// random suffix, both base-36 encoded.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewBasketID returns a 12-character, lexicographically time-sortable id:
// 8 chars of base-36 millisecond timestamp, 4 chars of random suffix.
func NewBasketID() string {
	return NewBasketIDAt(time.Now())
}

// NewBasketIDAt is the deterministic-time variant used by tests.
func NewBasketIDAt(now time.Time) string {
	ms := now.UnixMilli()
	ts := strings.ToLower(big.NewInt(ms).Text(36))
	for len(ts) < 8 {
		ts = "0" + ts
	}
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}
	return ts + randomSuffix(4)
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(suffixAlphabet))))
		if err != nil {
			// crypto/rand failure is unrecoverable; a predictable fallback
			// keeps id generation total rather than panicking mid-cycle.
			buf[i] = suffixAlphabet[i%len(suffixAlphabet)]
			continue
		}
		buf[i] = suffixAlphabet[idx.Int64()]
	}
	return string(buf)
}

// ClientOrderID builds the deterministic client_order_id grammar:
// pair_basketID_side_slot, enforcing the 36-char venue limit.
func ClientOrderID(pair, basketID, side, slot string) (string, error) {
	id := fmt.Sprintf("%s_%s_%s_%s", pair, basketID, side, slot)
	if len(id) > 36 {
		return "", fmt.Errorf("client order id %q exceeds 36 chars", id)
	}
	return id, nil
}
