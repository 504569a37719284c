package object

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewVersionID allocates a version id for a versioning-enabled PUT. The
// leading component is the inverted wall-clock in nanoseconds, zero-padded
// hex, so plain lexicographic order over ids is newest-first. The uuid
// suffix disambiguates ids minted within the same nanosecond.
func NewVersionID() string {
	inverted := uint64(math.MaxInt64 - time.Now().UnixNano())
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%016x%s", inverted, suffix)
}
