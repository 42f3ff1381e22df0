package intent

import "time"

// Command is one recognized utterance on its way through the router.
// It is passed by value and never mutated after construction.
type Command struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Intent    Intent    `json:"intent"`
	Entities  EntitySet `json:"entities"`
}

// NewCommand builds a Command stamped at now.
func NewCommand(now time.Time, text string, in Intent, es EntitySet) Command {
	if es == nil {
		es = EntitySet{}
	}
	return Command{Timestamp: now, Text: text, Intent: in, Entities: es}
}

// Parse runs text through the extractor and wraps the result.
func (e *Extractor) Parse(text string) Command {
	in, es := e.Process(text)
	return NewCommand(e.now(), text, in, es)
}
