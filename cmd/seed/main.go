package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinova/scheduler/internal/booking"
	"github.com/clinova/scheduler/internal/db"
	"github.com/clinova/scheduler/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProviders(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedGuest(context.Background(), pool); err != nil {
		log.Fatalf("seed guest patient: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d providers", count)

	specialties := []string{
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

	masks := []schedule.WeekdayMask{
		schedule.MaskOf(time.Monday, time.Wednesday, time.Friday),
		schedule.MaskOf(time.Tuesday, time.Thursday),
		schedule.MaskOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
		schedule.MaskOf(time.Saturday, time.Sunday),
	}
	slotLengths := []int{15, 20, 30, 60}

	for i := 0; i < count; i++ {
		specialty := gofakeit.RandomString(specialties)
		sched := schedule.Schedule{
			Days:        masks[gofakeit.Number(0, len(masks)-1)],
			DayStartMin: gofakeit.Number(8, 10) * 60,
			DayEndMin:   gofakeit.Number(15, 18) * 60,
			SlotMinutes: slotLengths[gofakeit.Number(0, len(slotLengths)-1)],
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO providers
				(id, name, specialty, available, fee_minor, currency,
				 days_mask, day_start_min, day_end_min, slot_minutes,
				 created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		`,
			uuid.New(),
			"Dr. "+gofakeit.Name(),
			specialty,
			gofakeit.Number(0, 9) > 0, // roughly one in ten unavailable
			int64(gofakeit.Number(3000, 25000)),
			"usd",
			int(sched.Days),
			sched.DayStartMin,
			sched.DayEndMin,
			sched.SlotMinutes,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (email) DO NOTHING
		`, uuid.New(), gofakeit.Name(), email)
		if err != nil {
			return err
		}
	}

	return nil
}

func seedGuest(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (email) DO NOTHING
	`, uuid.New(), booking.GuestName, booking.GuestEmail)
	return err
}
