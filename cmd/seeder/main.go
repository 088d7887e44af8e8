// cmd/seeder/main.go
package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/crm-sms-fallback/internal/config"
	"github.com/unclebandit/crm-sms-fallback/internal/db"
	"github.com/unclebandit/crm-sms-fallback/internal/logging"
	"github.com/unclebandit/crm-sms-fallback/internal/model"
)

var seedFiles = []string{
	"seed/schema.sql",
	"seed/settings.sql",
}

type sampleSMS struct {
	phone   string
	message string
	retries int
}

// Rows that exercise each fallback path: contact verification, leader
// verification, referral link and a message that never qualifies.
var samples = []sampleSMS{
	{"+5561999998888", "Seu código: AB12C. Acesse: https://crm.example.com/verificar-contato/AB12C", 6},
	{"+5561988887777", "Olá! Confirme seu cadastro de liderança: https://crm.example.com/verificar-lider/QW34E", 6},
	{"+5561977776666", "Seu link de indicação: https://crm.example.com/cadastro/joao-silva-7f3a", 3},
	{"+5561966665555", "Obrigado pelo apoio à nossa campanha!", 9},
}

func main() {
	logger := logging.New("seeder", config.LogConfig{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err)
	}
	conn, err := db.Open(cfg.DB, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer conn.Close()

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Fatalf("failed to read %s: %v", file, err)
		}
		if _, err := conn.Exec(string(content)); err != nil {
			logger.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	if err := seedRecipients(conn); err != nil {
		logger.Fatalf("failed to seed recipients: %v", err)
	}
	if err := seedMessages(conn); err != nil {
		logger.Fatalf("failed to seed sms messages: %v", err)
	}

	fmt.Println("Database seeding completed successfully!")
}

func seedRecipients(conn *sql.DB) error {
	_, err := conn.Exec(
		`INSERT INTO contacts (id, name, phone, is_verified, verification_code) VALUES ($1, $2, $3, false, $4)`,
		uuid.NewString(), "Maria Souza", "(61) 99999-8888", "AB12C",
	)
	if err != nil {
		return err
	}

	leaders := []struct {
		name, phone, token string
		verified           bool
	}{
		{"Carlos Lima", "61988887777", "carlos-lima-91bc", false},
		{"João Silva", "+55 61 97777-6666", "joao-silva-7f3a", true},
	}
	for _, l := range leaders {
		_, err := conn.Exec(
			`INSERT INTO leaders (id, name, phone, is_active, is_verified, affiliate_token) VALUES ($1, $2, $3, true, $4, $5)`,
			uuid.NewString(), l.name, l.phone, l.verified, l.token,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedMessages(conn *sql.DB) error {
	created := time.Now().UTC().Add(-2 * time.Hour)
	for i, s := range samples {
		history := model.RetryHistory{}
		for attempt := 1; attempt <= s.retries; attempt++ {
			history = append(history, model.RetryEntry{
				Attempt:   attempt,
				Status:    string(model.StatusFailed),
				Timestamp: created.Add(time.Duration(attempt) * 10 * time.Minute),
			})
		}

		_, err := conn.Exec(`
			INSERT INTO sms_messages (id, phone, message, status, retry_count, max_retries, retry_history, error_message, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8, $8)`,
			uuid.NewString(), s.phone, s.message, model.StatusFailed, s.retries, history,
			"provider timeout", created.Add(time.Duration(i)*time.Minute),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
