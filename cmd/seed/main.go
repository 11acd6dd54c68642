package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtriage/triage-booking/internal/db"
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

var symptoms = []string{
	"persistent headache",
	"chest pain on exertion",
	"itchy rash on both arms",
	"lower back pain",
	"blurred vision",
	"shortness of breath",
	"recurring dizziness",
	"joint swelling",
	"abdominal cramps",
	"ear pain and ringing",
}

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

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedRequests(context.Background(), pool, patientIDs, doctorIDs, 500); err != nil {
		log.Fatalf("seed requests: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]int64, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		city := gofakeit.City()

		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO users (username, role, name, email, specialty, location)
			VALUES ($1, 'doctor', $2, $3, $4, $5)
			RETURNING id
		`, fmt.Sprintf("dr_%s_%d", gofakeit.Username(), i), name, gofakeit.Email(), spec, city).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]int64, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]int64, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO users (username, role, name, email)
				VALUES ($1, 'patient', $2, $3)
				RETURNING id
			`, fmt.Sprintf("%s_%d", gofakeit.Username(), i), gofakeit.Name(), gofakeit.Email()).Scan(&id)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

func seedRequests(ctx context.Context, pool *pgxpool.Pool, patientIDs, doctorIDs []int64, count int) error {
	log.Printf("seeding %d triage requests", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		symptom := symptoms[gofakeit.Number(0, len(symptoms)-1)]
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		answers := []string{
			gofakeit.Sentence(6),
			gofakeit.Sentence(4),
		}

		// Roughly a third already viewed by a doctor, the rest fresh.
		status := "new"
		var doctorID *int64
		if gofakeit.Number(0, 2) == 0 {
			status = "viewed"
			id := doctorIDs[gofakeit.Number(0, len(doctorIDs)-1)]
			doctorID = &id
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO requests (patient_id, symptom, specialty, answers, status, doctor_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, patientID, symptom, spec, answers, status, doctorID)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("triage requests seeded")
	return nil
}
