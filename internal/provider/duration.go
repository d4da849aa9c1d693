package provider

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseISODuration converts an ISO 8601 duration such as "PT1H23M45S" or
// "P1DT2H" into whole seconds. The platform never reports sub-second or
// month/year granularity for video lengths.
func ParseISODuration(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("missing P prefix")
	}
	s = s[1:]

	datePart := s
	timePart := ""
	if idx := strings.IndexByte(s, 'T'); idx >= 0 {
		datePart = s[:idx]
		timePart = s[idx+1:]
	}

	total := 0
	var err error
	if total, err = accumulate(datePart, total, map[byte]int{'D': 86400, 'W': 604800}); err != nil {
		return 0, err
	}
	if total, err = accumulate(timePart, total, map[byte]int{'H': 3600, 'M': 60, 'S': 1}); err != nil {
		return 0, err
	}
	return total, nil
}

func accumulate(part string, total int, multipliers map[byte]int) (int, error) {
	start := 0
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c >= '0' && c <= '9' {
			continue
		}
		mult, ok := multipliers[c]
		if !ok {
			return 0, fmt.Errorf("unexpected designator %q", string(c))
		}
		if start == i {
			return 0, fmt.Errorf("designator %q without value", string(c))
		}
		value, err := strconv.Atoi(part[start:i])
		if err != nil {
			return 0, fmt.Errorf("parse value before %q: %w", string(c), err)
		}
		total += value * mult
		start = i + 1
	}
	if start != len(part) {
		return 0, fmt.Errorf("trailing digits without designator in %q", part)
	}
	return total, nil
}
