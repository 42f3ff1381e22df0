package intent

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Extractor turns utterance text into an intent and its entities.
// It holds no state besides the clock used to resolve 12-hour times.
type Extractor struct {
	now func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock overrides the clock used to pick the next occurrence of an
// ambiguous hour.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an extractor using the wall clock by default.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process classifies text with the ordered rule table and extracts the
// entities that intent uses. Unmatched text yields Unknown with the raw
// text under raw_query; empty text yields Unknown with no entities.
func (e *Extractor) Process(text string) (Intent, EntitySet) {
	raw := strings.TrimSpace(text)
	norm := Normalize(raw)
	if norm == "" {
		return Unknown, EntitySet{}
	}

	in := Classify(norm)
	if in == Unknown {
		return Unknown, EntitySet{EntityRawQuery: StringValue(Sanitize(raw))}
	}
	return in, e.entities(in, norm)
}

var meridiemRe = regexp.MustCompile(`([ap])\. ?m(?:\.|\b)`)

// Normalize lower-cases text, folds "a.m."/"p.m." into "am"/"pm", drops
// apostrophes, turns remaining punctuation into spaces (keeping colons
// between digits) and collapses whitespace.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = meridiemRe.ReplaceAllString(s, "${1}m")
	s = strings.NewReplacer("'", "", "’", "").Replace(s)

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ':' && i > 0 && i < len(runes)-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var shellMeta = strings.NewReplacer(";", "", "|", "", "&", "", "`", "", "$", "")

// Sanitize removes shell metacharacters from free-form text.
func Sanitize(s string) string {
	return strings.TrimSpace(shellMeta.Replace(s))
}

var (
	kindRe      = regexp.MustCompile(`\b(alarm|reminder|timer)s?\b`)
	taskRefRe   = regexp.MustCompile(`\b(?:(?:task|alarm|reminder|timer)(?: number)?|number) (\d+|` + numberWordAlt + `)\b`)
	recipientRe = regexp.MustCompile(`\b(?:to|email|message|text|whatsapp|tell)(?: (?:a|an|the|my|to))* (\w+)`)
	messageRe   = regexp.MustCompile(`\b(?:saying|that says|and say|say|that) (.+)$`)
	reminderRe  = regexp.MustCompile(`\b(?:remind me|reminder)(?: (?:to|about|that|for))? (.+)$`)
	todoAddRe   = regexp.MustCompile(`\badd (.+?) to (?:my |the )?(?:todo|to do) list\b`)
	todoNewRe   = regexp.MustCompile(`\b(?:create|add|new) (?:a |an )?(?:todo|to do|task)(?: item)?(?: (?:to|for|called))? (.+)$`)
	todoNameRe  = regexp.MustCompile(`\b(?:mark|delete|remove) (.+?) (?:as (?:done|complete|completed|finished)|from (?:my |the )?(?:todo|to do) list)\b`)
	wikiRe      = regexp.MustCompile(`\b(?:search wikipedia for|wikipedia for|wikipedia|who is|who was|tell me about)\b(?: (.+))?$`)
	searchRe    = regexp.MustCompile(`\b(?:search for|search|look up|google|find|whats|what is)\b(?: (.+))?$`)
	levelRe     = regexp.MustCompile(`\b(\d{1,3})(?: ?percent)?\b`)
	typeRe      = regexp.MustCompile(`\b(?:type|write down|dictate)\b(?: (.+))?$`)
	keyRe       = regexp.MustCompile(`\b(?:press|hit)(?: the)? (\w+)`)
	locationRe  = regexp.MustCompile(`\b(?:in|for|at) ([a-z][a-z ]*?)(?: (?:today|tomorrow|tonight|this week|right now|now))?$`)
)

var relativeDays = map[string]bool{
	"today": true, "tomorrow": true, "tonight": true, "now": true, "this week": true,
}

var recipientStop = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "to": true, "saying": true, "say": true, "that": true,
}

func (e *Extractor) entities(in Intent, text string) EntitySet {
	es := EntitySet{}
	switch in {
	case OpenApp, CloseApp:
		if app, ok := lookupApp(text); ok {
			es[EntityAppName] = StringValue(app)
		}

	case SetAlarm:
		if cm, ok := parseClock(text, e.now()); ok {
			es[EntityHour] = IntValue(cm.clock.Hour)
			es[EntityMinute] = IntValue(cm.clock.Minute)
		}

	case SetReminder:
		if cm, ok := parseClock(text, e.now()); ok {
			es[EntityHour] = IntValue(cm.clock.Hour)
			es[EntityMinute] = IntValue(cm.clock.Minute)
		}
		if d, ok := parseDuration(text); ok {
			es[EntityDuration] = DurationValue(d)
		}
		if m := reminderRe.FindStringSubmatchIndex(text); m != nil {
			if task := e.reminderTask(text, m[2], m[3]); task != "" {
				es[EntityTask] = StringValue(task)
			}
		}

	case SetTimer:
		if d, ok := parseDuration(text); ok {
			es[EntityDuration] = DurationValue(d)
		}

	case CancelTask:
		if m := kindRe.FindStringSubmatch(text); m != nil {
			es[EntityKind] = StringValue(m[1])
		}
		if m := taskRefRe.FindStringSubmatch(text); m != nil {
			if n, ok := parseNumber(m[1]); ok {
				es[EntityTaskID] = IntValue(n)
			}
		}

	case CreateTodo:
		if m := todoAddRe.FindStringSubmatch(text); m != nil {
			es[EntityTask] = StringValue(m[1])
		} else if m := todoNewRe.FindStringSubmatch(text); m != nil {
			es[EntityTask] = StringValue(m[1])
		}

	case CompleteTodo, DeleteTodo:
		if n, ok := firstNumber(text); ok {
			es[EntityTaskNumber] = IntValue(n)
		} else if m := todoNameRe.FindStringSubmatch(text); m != nil {
			es[EntityTask] = StringValue(m[1])
		}

	case SendEmail, SendWhatsApp:
		for _, m := range recipientRe.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if recipientStop[name] || name == "email" || name == "message" || name == "whatsapp" {
				continue
			}
			if !isPronoun(name) {
				es[EntityRecipient] = StringValue(name)
			}
			break
		}
		if m := messageRe.FindStringSubmatch(text); m != nil {
			es[EntityMessage] = StringValue(m[1])
		}

	case Search:
		if q, ok := objectOf(searchRe, text); ok {
			es[EntityQuery] = StringValue(q)
		}

	case Wikipedia:
		if q, ok := objectOf(wikiRe, text); ok {
			es[EntityQuery] = StringValue(strings.TrimSuffix(q, " on wikipedia"))
		}

	case Volume, Brightness:
		if m := levelRe.FindStringSubmatch(text); m != nil {
			if n, ok := parseNumber(m[1]); ok && n <= 100 {
				es[EntityLevel] = IntValue(n)
			}
		}
		if dir := directionOf(text); dir != "" {
			es[EntityDirection] = StringValue(dir)
		}

	case TypeText:
		if m := typeRe.FindStringSubmatch(text); m != nil && m[1] != "" {
			es[EntityText] = StringValue(m[1])
		}

	case PressKey:
		if m := keyRe.FindStringSubmatch(text); m != nil {
			es[EntityKey] = StringValue(m[1])
		}

	case Weather:
		if m := locationRe.FindStringSubmatch(text); m != nil && !relativeDays[m[1]] {
			es[EntityLocation] = StringValue(m[1])
		}
	}
	return es
}

// reminderTask takes the reminder body before its time or duration phrase,
// or the part after it when nothing precedes ("remind me at 5 to ...").
func (e *Extractor) reminderTask(text string, start, end int) string {
	body := text[start:end]
	spanStart, spanEnd := len(body), len(body)
	if cm, ok := parseClock(body, e.now()); ok {
		spanStart, spanEnd = cm.start, cm.end
	}
	if s, en, ok := durationSpan(body); ok && s < spanStart {
		spanStart, spanEnd = s, en
	}
	if head := trimConnectives(body[:spanStart]); head != "" || spanEnd >= len(body) {
		return head
	}
	return trimConnectives(body[spanEnd:])
}

var connectives = map[string]bool{
	"to": true, "about": true, "that": true, "at": true, "in": true,
	"on": true, "by": true, "for": true, "from": true, "after": true,
}

func trimConnectives(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && connectives[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && connectives[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// objectOf returns the phrase after a verb pattern unless it is a bare pronoun.
func objectOf(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", false
	}
	q := strings.TrimSpace(m[1])
	if isPronoun(q) || (isPronoun(firstWord(q)) && strings.HasSuffix(q, " again")) {
		return "", false
	}
	return q, true
}

func directionOf(text string) string {
	words := strings.Fields(text)
	for _, w := range words {
		switch w {
		case "unmute":
			return "unmute"
		case "mute":
			return "mute"
		case "up", "louder", "increase", "raise", "higher", "brighter", "more":
			return "up"
		case "down", "quieter", "lower", "decrease", "softer", "dimmer", "dim", "less":
			return "down"
		}
	}
	return ""
}
