package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

const tripColumns = `id, rider_id, COALESCE(driver_id, ''), pickup_label, pickup_lat, pickup_lon,
	dest_label, dest_lat, dest_lon, vehicle_category, load_description, status,
	distance_km, duration_min, fare, is_paid, created_at, updated_at`

func (p *PostgresStore) SaveTrip(ctx context.Context, t *models.Trip) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO trips(id, rider_id, driver_id, pickup_label, pickup_lat, pickup_lon,
		dest_label, dest_lat, dest_lon, vehicle_category, load_description, status,
		distance_km, duration_min, fare, is_paid, created_at, updated_at)
		VALUES($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		t.ID, t.RiderID, t.DriverID, t.PickupLabel, t.Pickup.Lat, t.Pickup.Lon,
		t.DestinationLabel, t.Destination.Lat, t.Destination.Lon, t.Category, t.LoadDescription, t.Status,
		t.DistanceKm, t.DurationMin, t.Fare, t.Paid, t.CreatedAt, t.UpdatedAt)
	return err
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (models.Trip, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, false, nil
	}
	if err != nil {
		return models.Trip{}, false, err
	}
	return t, true, nil
}

// AssignDriver is the serializable read-modify-write guarding accept
// races: the WHERE clause makes the losing side observe zero rows.
func (p *PostgresStore) AssignDriver(ctx context.Context, tripID, driverID string) (models.Trip, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE trips SET driver_id=$1, status=$2, updated_at=$3
		WHERE id=$4 AND status=$5 AND driver_id IS NULL
		RETURNING `+tripColumns,
		driverID, models.StatusAccepted, time.Now(), tripID, models.StatusPending)
	return p.conditionalResult(ctx, row, tripID)
}

func (p *PostgresStore) TransitionStatus(ctx context.Context, tripID string, from, to models.TripStatus) (models.Trip, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE trips SET status=$1, updated_at=$2
		WHERE id=$3 AND status=$4
		RETURNING `+tripColumns,
		to, time.Now(), tripID, from)
	return p.conditionalResult(ctx, row, tripID)
}

func (p *PostgresStore) CancelTrip(ctx context.Context, tripID string) (models.Trip, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE trips SET status=$1, updated_at=$2
		WHERE id=$3 AND status NOT IN ($4, $5)
		RETURNING `+tripColumns,
		models.StatusCancelled, time.Now(), tripID, models.StatusCompleted, models.StatusCancelled)
	return p.conditionalResult(ctx, row, tripID)
}

func (p *PostgresStore) SetPaid(ctx context.Context, tripID string, paid bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET is_paid=$1, updated_at=$2 WHERE id=$3`, paid, time.Now(), tripID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// conditionalResult distinguishes "trip missing" from "condition lost".
func (p *PostgresStore) conditionalResult(ctx context.Context, row *sql.Row, tripID string) (models.Trip, error) {
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, ok, gerr := p.GetTrip(ctx, tripID); gerr == nil && !ok {
			return models.Trip{}, ErrNotFound
		}
		return models.Trip{}, ErrPreconditionFailed
	}
	if err != nil {
		return models.Trip{}, err
	}
	return t, nil
}

func scanTrip(row *sql.Row) (models.Trip, error) {
	var t models.Trip
	err := row.Scan(&t.ID, &t.RiderID, &t.DriverID, &t.PickupLabel, &t.Pickup.Lat, &t.Pickup.Lon,
		&t.DestinationLabel, &t.Destination.Lat, &t.Destination.Lon, &t.Category, &t.LoadDescription, &t.Status,
		&t.DistanceKm, &t.DurationMin, &t.Fare, &t.Paid, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
