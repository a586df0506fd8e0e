package account

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

const codeLength = 6

var (
	NowFunc = time.Now // mockable

	codeMax = big.NewInt(1_000_000)
)

// newCode returns a random 6-digit code and its absolute expiry.
func newCode(ttl time.Duration) (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, codeMax)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "generating code")
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()), NowFunc().UTC().Add(ttl), nil
}

// codeMatches reports whether candidate equals a stored code that has not expired yet.
func codeMatches(code string, expiry time.Time, candidate string) bool {
	if code == "" || len(candidate) != codeLength {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(candidate)) != 1 {
		return false
	}
	return NowFunc().Before(expiry)
}

// humanizeTTL renders code lifetimes for emails, eg. "10 minutes".
func humanizeTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
