package corpus

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/gcbaptista/patient-search/config"
	"github.com/gcbaptista/patient-search/model"
)

const selectPatients = `SELECT id, name, first_name, room, bed, floor, site, birth_date, niss
FROM patients
ORDER BY id`

// OpenPostgres opens and pings the patient database.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// PostgresProvider reads the corpus from the patients table.
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider wraps an open database handle.
func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) Name() string { return "postgres" }

// Patients loads every row ordered by id. NULL columns become empty strings.
func (p *PostgresProvider) Patients(ctx context.Context) ([]model.Patient, error) {
	rows, err := p.db.QueryContext(ctx, selectPatients)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		var (
			id                                                   string
			name, firstName, room, bed, floor, site, birth, niss sql.NullString
		)
		if err := rows.Scan(&id, &name, &firstName, &room, &bed, &floor, &site, &birth, &niss); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, model.Patient{
			ID:                   id,
			Name:                 name.String,
			FirstName:            firstName.String,
			Room:                 room.String,
			Bed:                  bed.String,
			Floor:                floor.String,
			Site:                 site.String,
			BirthDate:            birth.String,
			SocialSecurityNumber: niss.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}
	if patients == nil {
		patients = []model.Patient{}
	}
	return patients, nil
}
