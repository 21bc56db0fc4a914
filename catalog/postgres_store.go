package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStudyStore implements StudyStore on the studies table. Grid,
// constraints and defaults are stored as JSONB documents.
type PostgresStudyStore struct {
	db *sql.DB
}

// OpenDB connects to Postgres and checks the connection
func OpenDB(ctx context.Context, url string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewPostgresStudyStore wraps an open database handle
func NewPostgresStudyStore(db *sql.DB) *PostgresStudyStore {
	return &PostgresStudyStore{db: db}
}

const studyColumns = `id, name, grid, constraints, defaults, active, created_at, updated_at`

// Add inserts a new study
func (s *PostgresStudyStore) Add(study *Study) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM studies WHERE id = $1)
	`, study.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check study existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrStudyExists, study.ID)
	}

	grid, cs, defaults, err := encodeStudy(study)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO studies (`+studyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, study.ID, study.Name, grid, cs, defaults, study.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert study: %w", err)
	}

	study.CreatedAt = now
	study.UpdatedAt = now
	return nil
}

// Get retrieves a study by ID
func (s *PostgresStudyStore) Get(id string) (*Study, error) {
	row := s.db.QueryRow(`
		SELECT `+studyColumns+`
		FROM studies
		WHERE id = $1
	`, id)

	study, err := scanStudy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	return study, nil
}

// ListActive returns active studies oldest first
func (s *PostgresStudyStore) ListActive() ([]*Study, error) {
	rows, err := s.db.Query(`
		SELECT ` + studyColumns + `
		FROM studies
		WHERE active = true
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active studies: %w", err)
	}
	defer rows.Close()

	var studies []*Study
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		studies = append(studies, study)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating studies: %w", err)
	}
	return studies, nil
}

// Update rewrites everything but the ID and creation time
func (s *PostgresStudyStore) Update(study *Study) error {
	grid, cs, defaults, err := encodeStudy(study)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE studies
		SET name = $1, grid = $2, constraints = $3, defaults = $4, active = $5, updated_at = $6
		WHERE id = $7
	`, study.Name, grid, cs, defaults, study.Active, now, study.ID)
	if err != nil {
		return fmt.Errorf("failed to update study: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, study.ID)
	}

	study.UpdatedAt = now
	return nil
}

// Delete removes a study
func (s *PostgresStudyStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM studies
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudy(row scanner) (*Study, error) {
	var (
		study              Study
		grid, cs, defaults []byte
	)
	if err := row.Scan(&study.ID, &study.Name, &grid, &cs, &defaults,
		&study.Active, &study.CreatedAt, &study.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(grid, &study.Grid); err != nil {
		return nil, fmt.Errorf("decoding grid of study %s: %w", study.ID, err)
	}
	if err := json.Unmarshal(cs, &study.Constraints); err != nil {
		return nil, fmt.Errorf("decoding constraints of study %s: %w", study.ID, err)
	}
	if err := json.Unmarshal(defaults, &study.Defaults); err != nil {
		return nil, fmt.Errorf("decoding defaults of study %s: %w", study.ID, err)
	}
	return &study, nil
}

func encodeStudy(study *Study) (grid, cs, defaults []byte, err error) {
	for _, rule := range study.Constraints.CustomRules {
		if rule.Predicate != nil {
			return nil, nil, nil, fmt.Errorf("custom rule %q: Go predicates cannot be persisted, use a condition", rule.Name)
		}
	}
	if grid, err = json.Marshal(study.Grid); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding grid: %w", err)
	}
	if cs, err = json.Marshal(study.Constraints); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding constraints: %w", err)
	}
	if defaults, err = json.Marshal(study.Defaults); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding defaults: %w", err)
	}
	return grid, cs, defaults, nil
}
