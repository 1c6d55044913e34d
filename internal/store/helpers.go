package store

import (
	"context"
	"database/sql"
	"errors"

	"parallelcamera/internal/services"
)

const (
	historyColumns   = "id, description, generated_image, original_image, latitude, longitude, mode, creative_element, user_prompt, character_name, timestamp"
	characterColumns = "id, name, reference_image, description, created_at, usage_count, last_used_at"
)

// Primary result codes from the SQLite C API.
const (
	sqliteReadOnlyCode   = 8
	sqliteIOErrCode      = 10
	sqliteFullCode       = 13
	sqliteCantOpenCode   = 14
	sqliteConstraintCode = 19
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(scanner rowScanner) (*HistoryRecord, error) {
	var (
		rec             HistoryRecord
		mode            string
		latitude        sql.NullFloat64
		longitude       sql.NullFloat64
		creativeElement sql.NullString
		userPrompt      sql.NullString
		characterName   sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Description,
		&rec.GeneratedImage,
		&rec.OriginalImage,
		&latitude,
		&longitude,
		&mode,
		&creativeElement,
		&userPrompt,
		&characterName,
		&rec.Timestamp,
	); err != nil {
		return nil, err
	}
	rec.Mode = Mode(mode)
	rec.CreativeElement = creativeElement.String
	rec.UserPrompt = userPrompt.String
	rec.CharacterName = characterName.String
	if latitude.Valid && longitude.Valid {
		rec.Location = &Location{Latitude: latitude.Float64, Longitude: longitude.Float64}
	}
	return &rec, nil
}

func scanCharacter(scanner rowScanner) (*CharacterRecord, error) {
	var (
		rec         CharacterRecord
		description sql.NullString
		lastUsedAt  sql.NullInt64
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&rec.ReferenceImage,
		&description,
		&rec.CreatedAt,
		&rec.UsageCount,
		&lastUsedAt,
	); err != nil {
		return nil, err
	}
	rec.Description = description.String
	if lastUsedAt.Valid {
		v := lastUsedAt.Int64
		rec.LastUsedAt = &v
	}
	return &rec, nil
}

func collectHistory(rows *sql.Rows) ([]HistoryRecord, error) {
	defer rows.Close()
	var records []HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func collectCharacters(rows *sql.Rows) ([]CharacterRecord, error) {
	defer rows.Close()
	var records []CharacterRecord
	for rows.Next() {
		rec, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func sqliteCode(err error) int {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code() & 0xff
	}
	return 0
}

// classifyWrite tags a failed mutation with the store error taxonomy.
func classifyWrite(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch sqliteCode(err) {
	case sqliteFullCode, sqliteConstraintCode, sqliteReadOnlyCode, sqliteIOErrCode:
		return services.Wrap(services.ErrWrite, "store", operation, "", err)
	case sqliteCantOpenCode:
		return services.Wrap(services.ErrStoreUnavailable, "store", operation, "", err)
	}
	if isSQLiteBusy(err) {
		return services.Wrap(services.ErrStoreUnavailable, "store", operation, "database busy", err)
	}
	return services.Wrap(services.ErrWrite, "store", operation, "", err)
}

// classifyRead tags a failed query. Read failures surface as StoreUnavailable
// so callers feeding a UI can degrade to empty results.
func classifyRead(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrStoreUnavailable, "store", operation, "", err)
}
