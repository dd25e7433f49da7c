package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var departments = []string{"Outpatient", "Emergency", "Surgery", "Maternity", "Radiology"}

type counts struct {
	doctors  int
	nurses   int
	admins   int
	rooms    int
	patients int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	n := counts{doctors: 40, nurses: 60, admins: 3, rooms: 25, patients: 5000}
	if err := seed(ctx, pool, logger, n); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seed(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, n counts) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < n.doctors; i++ {
		userID, err := insertUser(ctx, tx, string(notify.RoleDoctor))
		if err != nil {
			return fmt.Errorf("doctor user: %w", err)
		}
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		if _, err := tx.Exec(ctx, `INSERT INTO doctors (id, user_id, specialty) VALUES ($1, $2, $3)`,
			uuid.New(), userID, spec); err != nil {
			return fmt.Errorf("doctor: %w", err)
		}
	}
	logger.Info("doctors seeded", zap.Int("count", n.doctors))

	for i := 0; i < n.nurses; i++ {
		userID, err := insertUser(ctx, tx, string(notify.RoleNurse))
		if err != nil {
			return fmt.Errorf("nurse user: %w", err)
		}
		dept := departments[gofakeit.Number(0, len(departments)-1)]
		if _, err := tx.Exec(ctx, `INSERT INTO nurses (id, user_id, department) VALUES ($1, $2, $3)`,
			uuid.New(), userID, dept); err != nil {
			return fmt.Errorf("nurse: %w", err)
		}
	}
	logger.Info("nurses seeded", zap.Int("count", n.nurses))

	// both stored spellings of the admin role appear in real data
	adminSpellings := notify.RoleAdmin.Aliases()
	for i := 0; i < n.admins; i++ {
		if _, err := insertUser(ctx, tx, adminSpellings[i%len(adminSpellings)]); err != nil {
			return fmt.Errorf("admin user: %w", err)
		}
	}
	logger.Info("admins seeded", zap.Int("count", n.admins))

	for i := 0; i < n.rooms; i++ {
		name := fmt.Sprintf("Room %d%02d", i/10+1, i%10+1)
		if _, err := tx.Exec(ctx, `INSERT INTO rooms (id, name, floor) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
			uuid.New(), name, i/10+1); err != nil {
			return fmt.Errorf("room: %w", err)
		}
	}
	logger.Info("rooms seeded", zap.Int("count", n.rooms))

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	return seedPatients(ctx, pool, logger, n.patients)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			if _, err := insertUser(ctx, tx, string(notify.RolePatient)); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("patient: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, role string) (uuid.UUID, error) {
	id := uuid.New()
	person := gofakeit.Person()
	name := person.FirstName + " " + person.LastName
	// uuid prefix keeps the unique email constraint satisfied across runs
	email := strings.ToLower(fmt.Sprintf("%s.%s.%s@clinic.test", person.FirstName, person.LastName, id.String()[:8]))

	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, name, email, role, active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, id, name, email, role)
	return id, err
}
