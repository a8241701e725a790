package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tenderbridge/internal/config"
	"tenderbridge/internal/models"
	"tenderbridge/internal/repository/db"
)

// Repository is the record-store side of the bridge: Postgres, always
// writable, never authoritative for on-ledger state.
type Repository struct {
	db   *sql.DB
	conf *config.PostgresConfig
}

// NewRepository connects to Postgres and, when AutoMigrateUp is set,
// brings the schema up to date first. A nil conf falls back to the
// environment.
func NewRepository(conf *config.PostgresConfig) (*Repository, error) {
	if conf == nil {
		newConf, err := config.NewPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: %w", err)
		}
		conf = newConf
	}

	if conf.AutoMigrateUp == "true" {
		err := db.MigrateUp(conf.MigrationsURL, conf.Conn)
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: %w", err)
		}
	}

	database, err := db.NewPostgresDB(conf.Conn)
	if err != nil {
		return nil, fmt.Errorf("repository.NewRepository: %w", err)
	}

	return &Repository{db: database, conf: conf}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	err := r.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("repository.Repository.Ping: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	var errs []error
	if r.conf.AutoMigrateDown == "true" {
		errs = append(errs, db.MigrateDown(r.conf.MigrationsURL, r.conf.Conn))
	}
	errs = append(errs, r.db.Close())
	return errors.Join(errs...)
}

//// Parties

func (r *Repository) CreateParty(ctx context.Context, party *models.Party) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO parties (id, username, address) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		party.Id, party.Username, party.Address).
		Scan(&party.CreatedAt, &party.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.Repository.CreateParty: %w", err)
	}
	return nil
}

func (r *Repository) GetParty(ctx context.Context, partyId string) (*models.Party, error) {
	return r.getParty(ctx, "id", partyId)
}

func (r *Repository) GetPartyByUsername(ctx context.Context, username string) (*models.Party, error) {
	return r.getParty(ctx, "username", username)
}

func (r *Repository) getParty(ctx context.Context, column, value string) (*models.Party, error) {
	party := &models.Party{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, address, created_at, updated_at FROM parties WHERE `+column+` = $1`,
		value).
		Scan(&party.Id, &party.Username, &party.Address, &party.CreatedAt, &party.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository.Repository.getParty: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.getParty: %w", err)
	}
	return party, nil
}

//// Helpers

func wrapRollbackErr(err, rbErr error) error {
	if rbErr != nil {
		err = fmt.Errorf("%w, rollback error: %s", err, rbErr)
	}
	return err
}
