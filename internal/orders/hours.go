package orders

import (
	"fmt"
	"strings"
	"time"
)

const hoursLayout = "15:04"

// operatingHours is a daily [open, close] window. Bounds are whole minutes and
// the close bound is the instant HH:MM:00, so 22:00:01 is already closed.
// When close is earlier than open the window wraps past midnight.
type operatingHours struct {
	open     int
	close    int
	openRaw  string
	closeRaw string
}

// parseOperatingHours returns nil when the restaurant declares no hours.
func parseOperatingHours(open, close *string) (*operatingHours, error) {
	openRaw := trimmed(open)
	closeRaw := trimmed(close)
	if openRaw == "" && closeRaw == "" {
		return nil, nil
	}
	if openRaw == "" || closeRaw == "" {
		return nil, fmt.Errorf("operating hours need both open and close")
	}
	openAt, err := time.Parse(hoursLayout, openRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid open time %q: %w", openRaw, err)
	}
	closeAt, err := time.Parse(hoursLayout, closeRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid close time %q: %w", closeRaw, err)
	}
	return &operatingHours{
		open:     openAt.Hour()*60 + openAt.Minute(),
		close:    closeAt.Hour()*60 + closeAt.Minute(),
		openRaw:  openAt.Format(hoursLayout),
		closeRaw: closeAt.Format(hoursLayout),
	}, nil
}

// Contains reports whether at, already converted to the reference timezone, is inside the window.
func (h operatingHours) Contains(at time.Time) bool {
	second := at.Hour()*3600 + at.Minute()*60 + at.Second()
	open, close := h.open*60, h.close*60
	if h.open <= h.close {
		return second >= open && second <= close
	}
	return second >= open || second <= close
}

func (h operatingHours) String() string {
	return h.openRaw + "-" + h.closeRaw
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
