package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saraivavision/booking-service/internal/config"
	"github.com/saraivavision/booking-service/internal/db"
	"github.com/saraivavision/booking-service/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	sched := schedule.NormalizeJSON(cfg.ClinicHoursJSON)
	if err := seedAppointments(context.Background(), pool, cfg, sched, 14); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

// seedAppointments books a random subset of the next days' candidate slots so
// availability responses have realistic gaps.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, sched schedule.Schedule, days int) error {
	now := time.Now().In(cfg.Location())
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, days-1)

	total := 0
	for _, svc := range cfg.Services {
		candidates, err := schedule.Generate(sched, from, to, svc.DurationMinutes, now)
		if err != nil {
			return err
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		count := 0
		for _, slot := range candidates {
			// Leave roughly two thirds of the calendar open.
			if gofakeit.Number(0, 2) != 0 {
				continue
			}

			status := "confirmed"
			if gofakeit.Bool() {
				status = "pending"
			}
			expires := now.Add(24 * time.Hour)

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, service_id, patient_name, patient_email, patient_phone, date, start_time, end_time, notes, status, confirmation_token, expires_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10, $11, now(), now())
			`, uuid.New(), svc.ID, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(),
				slot.Date, slot.StartTime, slot.EndTime, status, uuid.NewString(), expires)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			count++
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("seeded %d appointments for service=%s", count, svc.ID)
		total += count
	}

	log.Printf("seeded %d appointments total", total)
	if total == 0 {
		log.Println("no candidate slots in range, check CLINIC_HOURS")
		os.Exit(1)
	}
	return nil
}
