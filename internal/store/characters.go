package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"parallelcamera/internal/services"
)

// CreateCharacter validates and stores a new character with a zero usage
// count, returning its id.
func (s *Store) CreateCharacter(ctx context.Context, rec CharacterRecord) (int64, error) {
	rec.Name = NormalizeCharacterName(rec.Name)
	rec.Description = strings.TrimSpace(rec.Description)
	if err := ValidateCharacter(rec); err != nil {
		return 0, err
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.nowMillis()
	}

	s.charactersMu.Lock()
	defer s.charactersMu.Unlock()

	res, err := s.execWithRetry(ctx,
		`INSERT INTO characters (name, reference_image, description, created_at, usage_count, last_used_at)
		 VALUES (?, ?, ?, ?, 0, NULL)`,
		rec.Name,
		rec.ReferenceImage,
		nullableString(rec.Description),
		rec.CreatedAt,
	)
	if err != nil {
		return 0, classifyWrite("create character", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classifyWrite("create character", err)
	}
	return id, nil
}

// ListCharacters returns every character, most recently created first.
func (s *Store) ListCharacters(ctx context.Context) ([]CharacterRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+characterColumns+` FROM characters ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, classifyRead("list characters", err)
	}
	records, err := collectCharacters(rows)
	if err != nil {
		return nil, classifyRead("list characters", err)
	}
	return records, nil
}

// SearchCharacters returns characters whose name contains query, ignoring case.
func (s *Store) SearchCharacters(ctx context.Context, query string) ([]CharacterRecord, error) {
	all, err := s.ListCharacters(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(NormalizeCharacterName(query))
	if needle == "" {
		return all, nil
	}
	matches := make([]CharacterRecord, 0, len(all))
	for _, rec := range all {
		if strings.Contains(strings.ToLower(rec.Name), needle) {
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

// GetCharacter fetches a character by id. It returns nil without an error when
// the character does not exist.
func (s *Store) GetCharacter(ctx context.Context, id int64) (*CharacterRecord, error) {
	rec, err := s.getCharacter(ctx, s.db, id)
	if err != nil {
		return nil, classifyRead("get character", err)
	}
	return rec, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getCharacter(ctx context.Context, q queryRower, id int64) (*CharacterRecord, error) {
	row := q.QueryRowContext(ensureContext(ctx),
		`SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	rec, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// UpdateCharacter merges patch into the stored character and returns the
// result. Only the name and description can change.
func (s *Store) UpdateCharacter(ctx context.Context, id int64, patch CharacterPatch) (*CharacterRecord, error) {
	ctx = ensureContext(ctx)

	s.charactersMu.Lock()
	defer s.charactersMu.Unlock()

	var updated *CharacterRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.getCharacter(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return services.Wrap(services.ErrNotFound, "store", "update character", "", nil)
		}
		merged := *current
		if patch.Name != nil {
			merged.Name = NormalizeCharacterName(*patch.Name)
		}
		if patch.Description != nil {
			merged.Description = strings.TrimSpace(*patch.Description)
		}
		if err := ValidateCharacter(merged); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE characters SET name = ?, description = ? WHERE id = ?`,
			merged.Name, nullableString(merged.Description), id,
		); err != nil {
			return err
		}
		updated = &merged
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
			return nil, err
		}
		return nil, classifyWrite("update character", err)
	}
	return updated, nil
}

// DeleteCharacter removes a character. History records keep their name
// snapshot. Deleting an absent id reports removed=false.
func (s *Store) DeleteCharacter(ctx context.Context, id int64) (bool, error) {
	return s.deleteByID(ctx, CollectionCharacters, id)
}
