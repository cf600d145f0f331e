package checkout

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	orderNumberLayout    = "20060102-150405"
	orderNumberSuffixLen = 4
	trackingNumberLen    = 10
)

// NumberGenerator produces human-readable order and tracking numbers. Uniqueness
// is enforced by the database; callers retry on collision.
type NumberGenerator interface {
	OrderNumber(now time.Time) string
	TrackingNumber() string
}

type randomNumbers struct{}

// NewNumberGenerator returns the default timestamp plus random suffix scheme.
func NewNumberGenerator() NumberGenerator {
	return randomNumbers{}
}

// OrderNumber returns ORD-YYYYMMDD-HHMMSS-XXXX.
func (randomNumbers) OrderNumber(now time.Time) string {
	return "ORD-" + now.UTC().Format(orderNumberLayout) + "-" + randomToken(orderNumberSuffixLen)
}

// TrackingNumber returns TRK-XXXXXXXXXX.
func (randomNumbers) TrackingNumber() string {
	return "TRK-" + randomToken(trackingNumberLen)
}

func randomToken(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")))
	}
	return b.String()[:n]
}
