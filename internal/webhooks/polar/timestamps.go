package polar

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// periodEnd reads a provider period end. Numbers are unix seconds; strings
// and other shapes go through instant.Parse.
func periodEnd(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case float64:
		return instant.FromUnixSeconds(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return instant.FromUnixSeconds(f)
	default:
		return instant.Parse(v)
	}
}

// accessEndsAt is the period end, or now plus the grace period when the
// provider value is missing or unusable.
func (s *Service) accessEndsAt(raw any, now time.Time) time.Time {
	if t, ok := periodEnd(raw); ok {
		return t
	}
	return now.Add(s.gracePeriod)
}

// present reports whether a loosely typed payload field carries a value.
func present(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case bool:
		return v
	default:
		return true
	}
}
