package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"mivoto/internal/container"
)

const usage = "Usage: go run ./cmd/migrate [drop|up|seed|reset]"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn, time.Now().UTC()); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("Data seeded successfully")

	case "reset":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		if err := seedData(ctx, conn, time.Now().UTC()); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("Database reset successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	tables := []string{
		"audit_events",
		"ballot_results",
		"vote_records",
		"voter_eligibilities",
		"ballots",
		"candidates",
		"institutions",
	}

	for _, table := range tables {
		if _, err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
		fmt.Printf("  Dropped: %s\n", table)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS institutions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true
		)`,

		`CREATE TABLE IF NOT EXISTS candidates (
			id TEXT PRIMARY KEY,
			institution_id TEXT NOT NULL REFERENCES institutions(id),
			display_name TEXT NOT NULL,
			list_name TEXT NOT NULL DEFAULT '',
			biography TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// ids stay numeric strings so they map onto the contract's uint256 ballot id
		`CREATE TABLE IF NOT EXISTS ballots (
			id TEXT PRIMARY KEY CHECK (id ~ '^[0-9]+$'),
			institution_id TEXT NOT NULL REFERENCES institutions(id),
			title TEXT NOT NULL,
			candidate_ids TEXT[] NOT NULL DEFAULT '{}',
			opens_at TIMESTAMPTZ,
			closes_at TIMESTAMPTZ,
			allow_multiple_selection BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS voter_eligibilities (
			id UUID PRIMARY KEY,
			subject_hash CHAR(64) NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			token_hash CHAR(64) NOT NULL UNIQUE,
			wallet_address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'CONSUMED')),
			issued_by TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS voter_eligibilities_one_active_per_subject
			ON voter_eligibilities(subject_hash) WHERE status = 'ACTIVE'`,

		`CREATE TABLE IF NOT EXISTS vote_records (
			id UUID PRIMARY KEY,
			ballot_id TEXT NOT NULL REFERENCES ballots(id),
			institution_id TEXT NOT NULL,
			candidate_ids TEXT[] NOT NULL,
			vote_hash CHAR(64) NOT NULL,
			token_hash CHAR(64) NOT NULL,
			subject_hash CHAR(64) NOT NULL,
			receipt CHAR(64) NOT NULL UNIQUE,
			tx_hash TEXT NOT NULL,
			sbt_token_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT vote_records_ballot_subject_key UNIQUE (ballot_id, subject_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vote_records_subject_hash ON vote_records(subject_hash)`,

		`CREATE TABLE IF NOT EXISTS ballot_results (
			id UUID PRIMARY KEY,
			ballot_id TEXT NOT NULL REFERENCES ballots(id),
			institution_id TEXT NOT NULL,
			candidate_votes JSONB NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL,
			checksum CHAR(64) NOT NULL,
			CONSTRAINT ballot_results_ballot_id_key UNIQUE (ballot_id)
		)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action, occurred_at DESC)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", getTableName(query))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn, now time.Time) error {
	inst := container.DemoInstitution
	_, err := conn.Exec(ctx, `
		INSERT INTO institutions (id, name, description, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active
	`, inst.ID, inst.Name, inst.Description, inst.Active)
	if err != nil {
		return fmt.Errorf("failed to seed institution: %w", err)
	}

	ids := make([]string, 0, len(container.DemoCandidates))
	for _, c := range container.DemoCandidates {
		_, err := conn.Exec(ctx, `
			INSERT INTO candidates (id, institution_id, display_name, list_name, biography, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (id) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				list_name = EXCLUDED.list_name,
				biography = EXCLUDED.biography,
				active = EXCLUDED.active,
				updated_at = EXCLUDED.updated_at
		`, c.ID, c.InstitutionID, c.DisplayName, c.ListName, c.Biography, c.Active, now)
		if err != nil {
			return fmt.Errorf("failed to seed candidate %s: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}
	fmt.Printf("  Seeded %d candidates\n", len(ids))

	_, err = conn.Exec(ctx, `
		INSERT INTO ballots (id, institution_id, title, candidate_ids, opens_at, closes_at, allow_multiple_selection)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			candidate_ids = EXCLUDED.candidate_ids,
			opens_at = EXCLUDED.opens_at,
			closes_at = EXCLUDED.closes_at
	`, container.DemoBallotID, inst.ID, container.DemoBallotTitle, ids, now.Add(-time.Hour), now.Add(7*24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to seed ballot: %w", err)
	}
	fmt.Printf("  Seeded ballot %s\n", container.DemoBallotID)

	return nil
}

func getTableName(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
