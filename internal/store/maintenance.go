package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"parallelcamera/internal/services"
)

// ClearConfirmation must be passed to Clear verbatim.
const ClearConfirmation = "CLEAR ALL RECORDS"

// Info describes the database for debug tooling.
type Info struct {
	Path           string `json:"path"`
	SchemaVersion  int    `json:"schemaVersion"`
	HistoryCount   int    `json:"historyCount"`
	CharacterCount int    `json:"characterCount"`
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, collection Collection) (int, error) {
	if _, err := ParseCollection(string(collection)); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM `+string(collection)).Scan(&count); err != nil {
		return 0, classifyRead("count "+string(collection), err)
	}
	return count, nil
}

// Clear deletes every record in a collection. The confirmation must equal
// ClearConfirmation; otherwise nothing is touched.
func (s *Store) Clear(ctx context.Context, collection Collection, confirm string) (int64, error) {
	if _, err := ParseCollection(string(collection)); err != nil {
		return 0, err
	}
	if strings.TrimSpace(confirm) != ClearConfirmation {
		return 0, services.NewValidationError("confirm", fmt.Sprintf("must equal %q", ClearConfirmation))
	}

	mu := s.lockFor(collection)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.execWithRetry(ctx, `DELETE FROM `+string(collection))
	if err != nil {
		return 0, classifyWrite("clear "+string(collection), err)
	}
	removed, _ := res.RowsAffected()
	s.logger.Warn("collection cleared",
		slog.String("collection", string(collection)),
		slog.Int64("removed", removed),
	)
	return removed, nil
}

// Info reports the database path, schema version and collection sizes.
func (s *Store) Info(ctx context.Context) (Info, error) {
	info := Info{Path: s.path, SchemaVersion: s.schemaVersion}
	var err error
	if info.HistoryCount, err = s.Count(ctx, CollectionHistory); err != nil {
		return info, err
	}
	if s.schemaVersion >= 2 {
		if info.CharacterCount, err = s.Count(ctx, CollectionCharacters); err != nil {
			return info, err
		}
	}
	return info, nil
}
