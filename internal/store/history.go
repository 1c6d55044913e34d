package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultRecentLimit is the number of records RecentHistory returns when no
// positive limit is given.
const DefaultRecentLimit = 20

// HistoryStats summarizes the history collection.
type HistoryStats struct {
	Total     int   `json:"total"`
	Realistic int   `json:"realistic"`
	Creative  int   `json:"creative"`
	Meta      int   `json:"meta"`
	Oldest    int64 `json:"oldest,omitempty"`
	Newest    int64 `json:"newest,omitempty"`
}

// InsertHistory validates and stores a history record, returning its id.
// A zero timestamp is replaced with the current time. When a history limit is
// configured, records beyond the newest limit are removed in the same
// transaction.
func (s *Store) InsertHistory(ctx context.Context, rec HistoryRecord) (int64, error) {
	if err := ValidateHistory(rec); err != nil {
		return 0, err
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = s.nowMillis()
	}

	var latitude, longitude any
	if rec.Location != nil {
		latitude, longitude = rec.Location.Latitude, rec.Location.Longitude
	}

	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	var (
		id      int64
		trimmed int64
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO history (description, generated_image, original_image, latitude, longitude, mode, creative_element, user_prompt, character_name, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Description,
			rec.GeneratedImage,
			rec.OriginalImage,
			latitude,
			longitude,
			string(rec.Mode),
			nullableString(rec.CreativeElement),
			nullableString(rec.UserPrompt),
			nullableString(rec.CharacterName),
			rec.Timestamp,
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		trimmed = 0
		if s.historyLimit > 0 {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY timestamp DESC, id DESC LIMIT ?)`,
				s.historyLimit,
			)
			if err != nil {
				return fmt.Errorf("trim history: %w", err)
			}
			trimmed, _ = res.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, classifyWrite("insert history", err)
	}
	if trimmed > 0 {
		s.logger.Debug("history trimmed to limit",
			slog.Int("limit", s.historyLimit),
			slog.Int64("removed", trimmed),
		)
	}
	return id, nil
}

// ListHistory returns every history record, newest first.
func (s *Store) ListHistory(ctx context.Context) ([]HistoryRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+historyColumns+` FROM history ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, classifyRead("list history", err)
	}
	records, err := collectHistory(rows)
	if err != nil {
		return nil, classifyRead("list history", err)
	}
	return records, nil
}

// RecentHistory returns up to limit of the newest history records.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+historyColumns+` FROM history ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classifyRead("recent history", err)
	}
	records, err := collectHistory(rows)
	if err != nil {
		return nil, classifyRead("recent history", err)
	}
	return records, nil
}

// HistoryByMode returns the history records captured in mode, newest first.
func (s *Store) HistoryByMode(ctx context.Context, mode Mode) ([]HistoryRecord, error) {
	if !mode.Valid() {
		_, err := ParseMode(string(mode))
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+historyColumns+` FROM history WHERE mode = ? ORDER BY timestamp DESC, id DESC`, string(mode))
	if err != nil {
		return nil, classifyRead("history by mode", err)
	}
	records, err := collectHistory(rows)
	if err != nil {
		return nil, classifyRead("history by mode", err)
	}
	return records, nil
}

// GetHistory fetches a history record by id. It returns nil without an error
// when the record does not exist.
func (s *Store) GetHistory(ctx context.Context, id int64) (*HistoryRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyRead("get history", err)
	}
	return rec, nil
}

// DeleteHistory removes a history record. Deleting an absent id is not an
// error; it reports removed=false.
func (s *Store) DeleteHistory(ctx context.Context, id int64) (bool, error) {
	return s.deleteByID(ctx, CollectionHistory, id)
}

// HistoryStats counts history records per mode and reports the timestamp range.
func (s *Store) HistoryStats(ctx context.Context) (HistoryStats, error) {
	ctx = ensureContext(ctx)
	var stats HistoryStats

	rows, err := s.db.QueryContext(ctx, `SELECT mode, COUNT(1) FROM history GROUP BY mode`)
	if err != nil {
		return stats, classifyRead("history stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mode  string
			count int
		)
		if err := rows.Scan(&mode, &count); err != nil {
			return stats, classifyRead("history stats", err)
		}
		stats.Total += count
		switch Mode(mode) {
		case ModeRealistic:
			stats.Realistic = count
		case ModeCreative:
			stats.Creative = count
		case ModeMeta:
			stats.Meta = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, classifyRead("history stats", err)
	}

	var oldest, newest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM history`).Scan(&oldest, &newest); err != nil {
		return stats, classifyRead("history stats", err)
	}
	stats.Oldest = oldest.Int64
	stats.Newest = newest.Int64
	return stats, nil
}

func (s *Store) deleteByID(ctx context.Context, collection Collection, id int64) (bool, error) {
	mu := s.lockFor(collection)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.execWithRetry(ctx, `DELETE FROM `+string(collection)+` WHERE id = ?`, id)
	if err != nil {
		return false, classifyWrite("delete "+string(collection), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classifyWrite("delete "+string(collection), err)
	}
	if affected == 0 {
		s.logger.Debug("delete skipped; record not found",
			slog.String("collection", string(collection)),
			slog.Int64("id", id),
		)
		return false, nil
	}
	return true, nil
}
