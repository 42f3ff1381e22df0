package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
	"thirty": 30, "forty": 40, "fifty": 50, "sixty": 60, "ninety": 90,
	"a": 1, "an": 1,
}

const numberWordAlt = `(?:twenty|thirty|forty|fifty) (?:one|two|three|four|five|six|seven|eight|nine)|zero|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty|sixty|ninety`

var (
	clockRe = regexp.MustCompile(`\b(?:(at|for|by|until|to) )?(\d{1,2})(?::(\d{2}))? ?(am|pm|oclock)?\b`)

	namedTimeRe = regexp.MustCompile(`\b(noon|midday|midnight)\b`)

	durationUnitAfterRe = regexp.MustCompile(`^ ?(?:seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)

	durationRe = regexp.MustCompile(`\b(\d+|` + numberWordAlt + `|a|an) (seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)

	halfHourRe = regexp.MustCompile(`\bhalf an hour\b`)

	numberRe = regexp.MustCompile(`\b(\d+|` + numberWordAlt + `)\b`)
)

// clockMatch is a recognized time of day and its byte span in the text.
type clockMatch struct {
	clock      TimeOfDay
	start, end int
}

// parseClock finds the first explicit time of day in normalized text.
//
// A bare number only counts as a time when it is introduced by at/for/by,
// written with minutes, or followed by am/pm, and never when a duration unit
// follows it ("for 5 minutes"). Hours without am/pm in 1-12 resolve to the
// next upcoming occurrence relative to now.
func parseClock(text string, now time.Time) (clockMatch, bool) {
	if m := namedTimeRe.FindStringSubmatchIndex(text); m != nil {
		hour := 12
		if text[m[2]:m[3]] == "midnight" {
			hour = 0
		}
		return clockMatch{clock: TimeOfDay{Hour: hour}, start: m[0], end: m[1]}, true
	}

	for _, m := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		prefix := group(text, m, 1)
		hourStr := group(text, m, 2)
		minStr := group(text, m, 3)
		suffix := group(text, m, 4)

		if durationUnitAfterRe.MatchString(text[m[1]:]) {
			continue
		}
		meridiem := suffix == "am" || suffix == "pm"
		if prefix == "" && minStr == "" && !meridiem && suffix != "oclock" {
			continue
		}

		hour, _ := strconv.Atoi(hourStr)
		minute := 0
		if minStr != "" {
			minute, _ = strconv.Atoi(minStr)
		}
		if minute > 59 {
			continue
		}

		switch {
		case meridiem:
			if hour < 1 || hour > 12 {
				continue
			}
			hour = to24(hour, suffix)
		case hour > 23:
			continue
		case hour >= 1 && hour <= 12:
			hour = nextOccurrence(hour, minute, now)
		}

		start := m[0]
		if prefix != "" {
			start = m[4]
		}
		return clockMatch{clock: TimeOfDay{Hour: hour, Minute: minute}, start: start, end: m[1]}, true
	}
	return clockMatch{}, false
}

func to24(hour int, meridiem string) int {
	switch {
	case meridiem == "am" && hour == 12:
		return 0
	case meridiem == "pm" && hour != 12:
		return hour + 12
	default:
		return hour
	}
}

// nextOccurrence picks whichever of the am/pm readings of hour comes first
// after now; if both have passed today, the morning reading (tomorrow).
func nextOccurrence(hour, minute int, now time.Time) int {
	morning := hour % 12
	evening := morning + 12
	current := now.Hour()*60 + now.Minute()
	for _, h := range []int{morning, evening} {
		if h*60+minute > current {
			return h
		}
	}
	return morning
}

// parseDuration sums every "<n> <unit>" group in the text.
func parseDuration(text string) (time.Duration, bool) {
	text = halfHourRe.ReplaceAllString(text, "30 minutes")

	var total time.Duration
	found := false
	for _, m := range durationRe.FindAllStringSubmatch(text, -1) {
		n, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		found = true
		total += time.Duration(n) * unitOf(m[2])
	}
	if strings.Contains(text, "and a half") && found {
		for _, m := range durationRe.FindAllStringSubmatch(text, -1) {
			if strings.HasPrefix(m[2], "h") {
				total += 30 * time.Minute
				break
			}
		}
	}
	return total, found && total > 0
}

// durationSpan returns the byte span covering all duration groups.
func durationSpan(text string) (int, int, bool) {
	locs := durationRe.FindAllStringIndex(text, -1)
	locs = append(locs, halfHourRe.FindAllStringIndex(text, -1)...)
	if len(locs) == 0 {
		return 0, 0, false
	}
	start, end := locs[0][0], locs[0][1]
	for _, l := range locs[1:] {
		start = min(start, l[0])
		end = max(end, l[1])
	}
	return start, end, true
}

func unitOf(u string) time.Duration {
	switch {
	case strings.HasPrefix(u, "h"):
		return time.Hour
	case strings.HasPrefix(u, "m"):
		return time.Minute
	default:
		return time.Second
	}
}

func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	total := 0
	for _, w := range strings.Fields(s) {
		n, ok := numberWords[w]
		if !ok {
			return 0, false
		}
		total += n
	}
	return total, s != ""
}

// firstNumber returns the first digit or number word in text.
func firstNumber(text string) (int, bool) {
	m := numberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseNumber(m[1])
}

func group(text string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}
