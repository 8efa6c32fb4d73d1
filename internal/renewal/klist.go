package renewal

import (
	"regexp"
	"strings"
	"time"
)

// renewUntilLineRe locates the "renew until" line inside a klist '#'-split
// segment.
var renewUntilLineRe = regexp.MustCompile(`(?i)renew until\s+(.+)$`)

// fourDigitYearRe and twoDigitYearRe are tried in order, matching the
// source's two date formats for a klist renewal timestamp.
var (
	fourDigitYearRe = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})\s+(\d{2}):(\d{2}):(\d{2})`)
	twoDigitYearRe  = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{2})\s+(\d{2}):(\d{2}):(\d{2})`)
)

// ParseRenewUntil splits klist's output on '#' (the source's
// newline-equivalent capture convention), finds the "renew until" line, and
// parses its date+time as local wall-clock time. An unparseable output
// returns ok=false; the caller must treat that as "do not renew this
// cycle", not an error.
func ParseRenewUntil(output []byte) (t time.Time, ok bool) {
	for _, segment := range strings.Split(string(output), "#") {
		for _, line := range strings.Split(segment, "\n") {
			line = strings.TrimSpace(line)
			m := renewUntilLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if parsed, parsedOK := parseKlistDate(strings.TrimSpace(m[1])); parsedOK {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// parseKlistDate tries the 4-digit-year format, then the 2-digit-year
// format, interpreting both per the %m/%d/%Y %T layout (month first) as
// local time (never converted to UTC, since
// klist itself renders local time).
func parseKlistDate(s string) (time.Time, bool) {
	if m := fourDigitYearRe.FindStringSubmatch(s); m != nil {
		return buildLocalTime(m[3], m[1], m[2], m[4], m[5], m[6])
	}
	if m := twoDigitYearRe.FindStringSubmatch(s); m != nil {
		year := "20" + m[3]
		return buildLocalTime(year, m[1], m[2], m[4], m[5], m[6])
	}
	return time.Time{}, false
}

func buildLocalTime(yearS, monthS, dayS, hourS, minS, secS string) (time.Time, bool) {
	layout := "2006-1-2-15-4-5"
	value := yearS + "-" + monthS + "-" + dayS + "-" + hourS + "-" + minS + "-" + secS
	t, err := time.ParseInLocation(layout, value, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
