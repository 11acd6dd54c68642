// simulate drives concurrent booking attempts against a running
// api-server to exercise the conflict handling: many workers target the
// same doctor with deliberately overlapping windows, and at most one
// booking per overlapping group may succeed.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/medtriage/triage-booking/internal/db"
)

type simConfig struct {
	APIBaseURL  string
	PostgresDSN string
	JWTSecret   string
	Workers     int
	Attempts    int
	SlotMinutes int
}

type metrics struct {
	success  int64
	conflict int64
	badInput int64
	limited  int64
	errored  int64
	totalNS  int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	_ = godotenv.Load()

	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Workers:     getInt("SIM_WORKERS", 16),
		Attempts:    getInt("SIM_ATTEMPTS", 200),
		SlotMinutes: getInt("SIM_SLOT_MINUTES", 30),
	}
	if cfg.PostgresDSN == "" || cfg.JWTSecret == "" {
		log.Fatal("POSTGRES_DSN and JWT_SECRET are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, patientID, requestIDs, err := prepareData(context.Background(), pool, cfg.Attempts)
	if err != nil {
		log.Fatalf("prepare data: %v", err)
	}
	log.Printf("prepared doctor=%d patient=%d requests=%d", doctorID, patientID, len(requestIDs))

	token, err := signToken(cfg.JWTSecret, doctorID, "doctor")
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	var m metrics
	client := &http.Client{Timeout: 10 * time.Second}
	jobs := make(chan int)

	// Every fourth attempt lands on a fresh slot; the rest collide with
	// a neighbor. Expected outcome: one success per distinct slot, the
	// rest conflicts.
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slot := i / 4
				offset := time.Duration(slot*cfg.SlotMinutes) * time.Minute
				jitter := time.Duration((i%4)*cfg.SlotMinutes/4) * time.Minute
				start := base.Add(offset + jitter)
				end := start.Add(time.Duration(cfg.SlotMinutes) * time.Minute)

				attemptBooking(client, cfg.APIBaseURL, token, &m, bookPayload{
					RequestID: strconv.FormatInt(requestIDs[i], 10),
					DoctorID:  strconv.FormatInt(doctorID, 10),
					PatientID: strconv.FormatInt(patientID, 10),
					StartTime: start,
					EndTime:   end,
					Mode:      "video",
				})
			}
		}()
	}

	startedAt := time.Now()
	for i := 0; i < cfg.Attempts; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	total := m.success + m.conflict + m.badInput + m.limited + m.errored
	log.Printf("done in %s: total=%d success=%d conflict=%d bad_input=%d rate_limited=%d error=%d avg_latency=%s",
		time.Since(startedAt),
		total,
		m.success,
		m.conflict,
		m.badInput,
		m.limited,
		m.errored,
		time.Duration(m.totalNS/max(total, 1)),
	)
}

type bookPayload struct {
	RequestID string    `json:"requestId"`
	DoctorID  string    `json:"doctorId"`
	PatientID string    `json:"patientId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Mode      string    `json:"mode"`
}

func attemptBooking(client *http.Client, baseURL, token string, m *metrics, payload bookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		atomic.AddInt64(&m.errored, 1)
		return
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/appointments/book", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&m.errored, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	atomic.AddInt64(&m.totalNS, int64(time.Since(start)))
	if err != nil {
		atomic.AddInt64(&m.errored, 1)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddInt64(&m.success, 1)
	case http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	case http.StatusBadRequest:
		atomic.AddInt64(&m.badInput, 1)
	case http.StatusTooManyRequests:
		// The /book route is rate limited per IP; a single-host run
		// trips it once the attempt count outpaces the window.
		atomic.AddInt64(&m.limited, 1)
	default:
		atomic.AddInt64(&m.errored, 1)
	}
}

func prepareData(ctx context.Context, pool *pgxpool.Pool, requestCount int) (doctorID, patientID int64, requestIDs []int64, err error) {
	suffix := time.Now().UnixNano()

	err = pool.QueryRow(ctx, `
		INSERT INTO users (username, role, name, specialty, location)
		VALUES ($1, 'doctor', 'Sim Doctor', 'General Practice', 'Simulation')
		RETURNING id
	`, fmt.Sprintf("sim_doctor_%d", suffix)).Scan(&doctorID)
	if err != nil {
		return 0, 0, nil, err
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO users (username, role, name)
		VALUES ($1, 'patient', 'Sim Patient')
		RETURNING id
	`, fmt.Sprintf("sim_patient_%d", suffix)).Scan(&patientID)
	if err != nil {
		return 0, 0, nil, err
	}

	requestIDs = make([]int64, 0, requestCount)
	for i := 0; i < requestCount; i++ {
		var id int64
		err = pool.QueryRow(ctx, `
			INSERT INTO requests (patient_id, symptom, specialty, answers, status)
			VALUES ($1, 'simulated symptom', 'General Practice', '[]'::jsonb, 'new')
			RETURNING id
		`, patientID).Scan(&id)
		if err != nil {
			return 0, 0, nil, err
		}
		requestIDs = append(requestIDs, id)
	}

	return doctorID, patientID, requestIDs, nil
}

func signToken(secret string, userID int64, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
