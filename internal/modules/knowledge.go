package modules

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/router"
)

const (
	// DefaultSearchURL is prefixed to the escaped query.
	DefaultSearchURL = "https://www.google.com/search?q="
	wikipediaURL     = "https://en.wikipedia.org/wiki/Special:Search?search="
)

// Opener shows a URL to the user, typically in a browser.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// KnowledgeModule answers time and date questions and hands searches to an
// Opener. It also serves as the router's fallback for unknown queries.
type KnowledgeModule struct {
	opener    Opener
	searchURL string
	now       func() time.Time
	log       zerolog.Logger
}

// NewKnowledgeModule creates a KnowledgeModule. opener may be nil, in which
// case searches are only logged.
func NewKnowledgeModule(opener Opener, searchURL string, opts ...Option) *KnowledgeModule {
	o := buildOptions(opts)
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &KnowledgeModule{opener: opener, searchURL: searchURL, now: o.now, log: o.log}
}

// Register binds the module's intents on r and installs the search fallback.
func (m *KnowledgeModule) Register(r *router.Router) {
	r.RegisterFunc(m.Time, intent.Time)
	r.RegisterFunc(m.Date, intent.Date)
	r.RegisterFunc(m.Search, intent.Search)
	r.RegisterFunc(m.Wikipedia, intent.Wikipedia)
	r.SetFallback(router.HandlerFunc(m.Fallback))
}

// Time reports the current time.
func (m *KnowledgeModule) Time(context.Context, intent.EntitySet) (string, error) {
	return fmt.Sprintf("It's %s.", m.now().Format("03:04 PM")), nil
}

// Date reports the current date.
func (m *KnowledgeModule) Date(context.Context, intent.EntitySet) (string, error) {
	return fmt.Sprintf("Today is %s.", m.now().Format("Monday, January 02, 2006")), nil
}

// Search runs a web search for the query entity.
func (m *KnowledgeModule) Search(ctx context.Context, es intent.EntitySet) (string, error) {
	q, _ := es.Str(intent.EntityQuery)
	q = strings.TrimSpace(q)
	if q == "" {
		return "What should I search for?", nil
	}
	if err := m.open(ctx, m.searchURL+url.QueryEscape(q)); err != nil {
		return "", err
	}
	return "Searching for: " + q, nil
}

// Wikipedia looks the query up on Wikipedia.
func (m *KnowledgeModule) Wikipedia(ctx context.Context, es intent.EntitySet) (string, error) {
	q, _ := es.Str(intent.EntityQuery)
	q = strings.TrimSpace(q)
	if q == "" {
		return "What should I look up?", nil
	}
	if err := m.open(ctx, wikipediaURL+url.QueryEscape(q)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Looking up %s on Wikipedia.", q), nil
}

// Fallback searches the web for the raw text of an unrecognized command.
func (m *KnowledgeModule) Fallback(ctx context.Context, es intent.EntitySet) (string, error) {
	raw, _ := es.Str(intent.EntityRawQuery)
	q := intent.Sanitize(strings.TrimSpace(raw))
	if q == "" {
		return router.ReplyDidNotUnderstand, nil
	}
	if err := m.open(ctx, m.searchURL+url.QueryEscape(q)); err != nil {
		return "", err
	}
	return fmt.Sprintf("I'm not sure about that, so I searched for: %s", q), nil
}

func (m *KnowledgeModule) open(ctx context.Context, u string) error {
	m.log.Info().Str("url", u).Msg("opening search")
	if m.opener == nil {
		return nil
	}
	if err := m.opener.Open(ctx, u); err != nil {
		return fmt.Errorf("open %s: %w", u, err)
	}
	return nil
}
