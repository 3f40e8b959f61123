package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberSuffixLen = 6

// NewOrderNumber formats ORD-YYYYMMDD-XXXXXX with a random upper-case hex
// suffix. Uniqueness is enforced by the database; callers retry on collision.
func NewOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:orderNumberSuffixLen]
	return "ORD-" + at.UTC().Format("20060102") + "-" + suffix
}
