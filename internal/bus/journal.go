package bus

import "github.com/rs/zerolog"

// Journal logs every pipeline event at debug level, so a verbose run shows
// the full trail from wake to response.
func Journal(b *EventBus, log zerolog.Logger) {
	b.SubscribeMultiple(AllEventTypes(), func(e Event) {
		log.Debug().
			Str("event_id", e.ID).
			Str("event", string(e.Type)).
			Fields(e.Data).
			Msg("event")
	})
}
