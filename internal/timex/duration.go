// Package timex holds time helpers shared by config loading and the token
// services.
package timex

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pmfstudio/reportgate/internal/common"
)

// Day is the unit token validity is expressed in on the admin surface.
const Day = 24 * time.Hour

// MaxDays is the largest day count a time.Duration can hold.
const MaxDays = math.MaxInt64 / int64(Day)

// Duration wraps time.Duration for JSON config files. It accepts a Go
// duration string ("90m", "720h"), a whole number of days ("30d"), or an
// integer number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		if value >= math.MaxInt64 || value < math.MinInt64 {
			return fmt.Errorf("%w: %v ns is out of range", common.ErrInvalidDuration, value)
		}
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// ParseDuration is time.ParseDuration extended with a "d" (days) suffix.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return Days(days)
	}
	return time.ParseDuration(s)
}

// Days converts a day count to a Duration. Counts whose magnitude exceeds
// MaxDays would wrap around and are rejected with common.ErrInvalidDuration.
func Days(n int) (time.Duration, error) {
	if int64(n) > MaxDays || int64(n) < -MaxDays {
		return 0, fmt.Errorf("%w: %d days is out of range (max %d)", common.ErrInvalidDuration, n, MaxDays)
	}
	return time.Duration(n) * Day, nil
}

// UTC truncates t to whole seconds and moves it to UTC, the only form in
// which token timestamps are stored and compared.
func UTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
