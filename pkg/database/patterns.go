package database

import (
	"fmt"

	"github.com/cuemby/kupo/pkg/pattern"
)

// InsertPattern persists a pattern so the set survives restarts.
func (t *Tx) InsertPattern(p pattern.Pattern) error {
	_, err := t.exec(`INSERT OR IGNORE INTO patterns (pattern) VALUES (?)`, p.String())
	if err != nil {
		return fmt.Errorf("failed to insert pattern %s: %w", p, err)
	}
	return nil
}

// DeletePattern removes a persisted pattern and returns how many rows went.
func (t *Tx) DeletePattern(p pattern.Pattern) (int64, error) {
	res, err := t.exec(`DELETE FROM patterns WHERE pattern = ?`, p.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete pattern %s: %w", p, err)
	}
	return res.RowsAffected()
}

// Patterns returns every persisted pattern.
func (t *Tx) Patterns() ([]pattern.Pattern, error) {
	rows, err := t.query(`SELECT pattern FROM patterns ORDER BY pattern`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []pattern.Pattern
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("unexpected row: %w", err)
		}
		p, err := pattern.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("unexpected row: stored pattern %q does not parse: %v", text, err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
