package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/db"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/obs"
)

type seedItem struct {
	Suffix   string
	Category catalog.Category
	Label    string
	Amount   string
	Term     *int
	Month    *string
}

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	branchID := valueOrDefault(os.Getenv("DEFAULT_BRANCH"), "default")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, dbURL, "sekolah-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	enrollments := []string{"ENR-2026-0001", "ENR-2026-0002", "ENR-2026-0003"}
	for _, enrollmentID := range enrollments {
		if err := seedEnrollment(ctx, pool, logger, branchID, enrollmentID); err != nil {
			logger.Fatal().Err(err).Str("enrollment_id", enrollmentID).Msg("seed enrollment")
		}
	}
	logger.Info().Str("branch_id", branchID).Int("enrollments", len(enrollments)).Msg("seeding completed")
}

func seedEnrollment(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, branchID, enrollmentID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, item := range feePlan() {
		amount, err := money.Parse(item.Amount)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO fee_items (id, branch_id, enrollment_id, category, label, original_amount, term_number, payment_month, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, original_amount = EXCLUDED.original_amount, updated_at = now()`,
			strings.ToLower(enrollmentID)+"-"+item.Suffix, branchID, enrollmentID, string(item.Category),
			item.Label, amount.Minor(), item.Term, item.Month, i)
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info().Str("enrollment_id", enrollmentID).Msg("fee items seeded")
	return nil
}

func feePlan() []seedItem {
	term := func(n int) *int { return &n }
	month := func(m string) *string { return &m }
	return []seedItem{
		{Suffix: "book", Category: catalog.CategoryBookFee, Label: "Books and stationery", Amount: "4500.00"},
		{Suffix: "tuition-1", Category: catalog.CategoryTuitionFee, Label: "Tuition term 1", Amount: "18500.00", Term: term(1)},
		{Suffix: "tuition-2", Category: catalog.CategoryTuitionFee, Label: "Tuition term 2", Amount: "18500.00", Term: term(2)},
		{Suffix: "tuition-3", Category: catalog.CategoryTuitionFee, Label: "Tuition term 3", Amount: "18500.00", Term: term(3)},
		{Suffix: "bus-2026-06", Category: catalog.CategoryTransportFee, Label: "School bus June", Amount: "1250.00", Month: month("2026-06")},
		{Suffix: "bus-2026-07", Category: catalog.CategoryTransportFee, Label: "School bus July", Amount: "1250.00", Month: month("2026-07")},
		{Suffix: "bus-2026-08", Category: catalog.CategoryTransportFee, Label: "School bus August", Amount: "1250.00", Month: month("2026-08")},
		{Suffix: "lab", Category: catalog.CategoryOther, Label: "Science lab deposit", Amount: "2000.00"},
	}
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
