package store

import (
	"context"
	"database/sql"

	"parallelcamera/internal/services"
)

// CharacterStats summarizes character usage.
type CharacterStats struct {
	TotalCount int              `json:"totalCount"`
	TotalUsage int64            `json:"totalUsage"`
	MostUsed   *CharacterRecord `json:"mostUsed,omitempty"`
}

// IncrementUsage records one use of a character: the usage count grows by
// exactly one and lastUsedAt is set to now.
func (s *Store) IncrementUsage(ctx context.Context, id int64) error {
	s.charactersMu.Lock()
	defer s.charactersMu.Unlock()

	res, err := s.execWithRetry(ctx,
		`UPDATE characters SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		s.nowMillis(), id,
	)
	if err != nil {
		return classifyWrite("increment usage", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classifyWrite("increment usage", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "increment usage", "", nil)
	}
	return nil
}

// MostUsed returns characters ordered by usage count, highest first. Equal
// counts are ordered by id so the oldest character comes first. A limit of
// zero or less returns every character.
func (s *Store) MostUsed(ctx context.Context, limit int) ([]CharacterRecord, error) {
	query := `SELECT ` + characterColumns + ` FROM characters ORDER BY usage_count DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, classifyRead("most used", err)
	}
	records, err := collectCharacters(rows)
	if err != nil {
		return nil, classifyRead("most used", err)
	}
	return records, nil
}

// CharacterStats reports the character count, the summed usage and the most
// used character, if any.
func (s *Store) CharacterStats(ctx context.Context) (CharacterStats, error) {
	ctx = ensureContext(ctx)
	var (
		stats CharacterStats
		total sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1), SUM(usage_count) FROM characters`).Scan(&stats.TotalCount, &total); err != nil {
		return stats, classifyRead("character stats", err)
	}
	stats.TotalUsage = total.Int64
	if stats.TotalCount == 0 {
		return stats, nil
	}
	top, err := s.MostUsed(ctx, 1)
	if err != nil {
		return stats, err
	}
	if len(top) > 0 {
		stats.MostUsed = &top[0]
	}
	return stats, nil
}
