package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// PostgresLeaseRepository stores one checkout lease row per account.
type PostgresLeaseRepository struct {
	db *sql.DB
}

func NewPostgresLeaseRepository(cred *Credentials) (*PostgresLeaseRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresLeaseRepository{db: db}, nil
}

func (r *PostgresLeaseRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "lease_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresLeaseRepository) GetLease(ctx context.Context, accountID string) (*domain.Lease, error) {
	query := `SELECT account_id, owner_device_id, payment_method, special_instructions, state, lease_expiry
	          FROM checkout_leases WHERE account_id = $1`

	var lease domain.Lease
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&lease.AccountID,
		&lease.OwnerDeviceID,
		&lease.PaymentMethod,
		&lease.SpecialInstructions,
		&lease.State,
		&lease.LeaseExpiry,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLeaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query lease by account id: %w", err)
	}

	return &lease, nil
}

func (r *PostgresLeaseRepository) UpsertLease(ctx context.Context, lease *domain.Lease) error {
	query := `INSERT INTO checkout_leases (account_id, owner_device_id, payment_method, special_instructions, state, lease_expiry, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW())
	          ON CONFLICT (account_id) DO UPDATE SET
	            owner_device_id = EXCLUDED.owner_device_id,
	            payment_method = EXCLUDED.payment_method,
	            special_instructions = EXCLUDED.special_instructions,
	            state = EXCLUDED.state,
	            lease_expiry = EXCLUDED.lease_expiry,
	            updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		lease.AccountID,
		lease.OwnerDeviceID,
		lease.PaymentMethod,
		lease.SpecialInstructions,
		lease.State,
		lease.LeaseExpiry)
	if err != nil {
		return fmt.Errorf("upsert lease: %w", err)
	}
	return nil
}

func (r *PostgresLeaseRepository) DeleteLease(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM checkout_leases WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	return nil
}

// DeleteExpired removes every lease whose expiry is before the given time.
// Used at startup so leases abandoned across a restart do not linger.
func (r *PostgresLeaseRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM checkout_leases WHERE lease_expiry < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired leases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *PostgresLeaseRepository) Close() error {
	return r.db.Close()
}
