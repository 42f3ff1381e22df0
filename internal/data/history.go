package data

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/normanking/cortexvoice/internal/conversation"
	"github.com/normanking/cortexvoice/internal/intent"
)

var _ conversation.HistoryStore = (*Store)(nil)

// SaveExchange appends an exchange to the persisted history. Saving an
// exchange ID twice keeps the first copy.
func (s *Store) SaveExchange(ctx context.Context, ex conversation.Exchange) error {
	entities, err := json.Marshal(ex.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	query := `
		INSERT INTO conversation_exchanges (id, timestamp, text, intent, entities, response)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		ex.ID, ex.Timestamp, ex.Text, string(ex.Intent), string(entities), ex.Response,
	)
	if err != nil {
		return fmt.Errorf("save exchange %s: %w", ex.ID, err)
	}
	return nil
}

// LoadExchanges returns the newest limit exchanges, oldest first. A
// non-positive limit returns the whole history.
func (s *Store) LoadExchanges(ctx context.Context, limit int) ([]conversation.Exchange, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, timestamp, text, intent, entities, response
		FROM conversation_exchanges
		ORDER BY seq DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []conversation.Exchange
	for rows.Next() {
		var (
			ex       conversation.Exchange
			in       string
			entities string
		)
		if err := rows.Scan(&ex.ID, &ex.Timestamp, &ex.Text, &in, &entities, &ex.Response); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		ex.Intent = intent.Intent(in)
		ex.Entities = intent.EntitySet{}
		if err := json.Unmarshal([]byte(entities), &ex.Entities); err != nil {
			s.log.Warn().Err(err).Str("exchange_id", ex.ID).Msg("dropping unreadable exchange entities")
			ex.Entities = nil
		}
		if ex.Entities == nil {
			ex.Entities = intent.EntitySet{}
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}

	slices.Reverse(out)
	return out, nil
}

// TrimExchanges keeps only the newest keep exchanges.
func (s *Store) TrimExchanges(ctx context.Context, keep int) error {
	query := `
		DELETE FROM conversation_exchanges
		WHERE seq NOT IN (
			SELECT seq FROM conversation_exchanges ORDER BY seq DESC LIMIT ?
		)
	`
	if _, err := s.db.ExecContext(ctx, query, max(keep, 0)); err != nil {
		return fmt.Errorf("trim exchanges: %w", err)
	}
	return nil
}

// ClearExchanges deletes the whole persisted history.
func (s *Store) ClearExchanges(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_exchanges`); err != nil {
		return fmt.Errorf("clear exchanges: %w", err)
	}
	return nil
}
