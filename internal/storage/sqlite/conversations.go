package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/the-missionary-company/parley/pkg/logger"
)

// ConversationStorage handles storage of finished conversations
type ConversationStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewConversationStorage creates a new SQLite conversation storage
func NewConversationStorage(db *sql.DB, logger *logger.Logger) *ConversationStorage {
	storage := &ConversationStorage{
		db:     db,
		logger: logger.Named("sqlite-convos"),
	}

	// Initialize database
	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize conversation storage", Error(err))
	}

	return storage
}

// initDB initializes the database tables
func (s *ConversationStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create turns table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, seq)`,
	}

	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create conversation index: %w", err)
		}
	}

	return nil
}

// Append stores a finished conversation for a user. Turn order is preserved
// via the seq column; the turn list is never mutated after this call.
func (s *ConversationStorage) Append(userID string, turns []TurnRecord, model string, timestamp time.Time) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("cannot store empty conversation")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()

	_, err = tx.Exec(
		`INSERT INTO conversations (id, user_id, model, created_at) VALUES (?, ?, ?, ?)`,
		id, userID, model, timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert conversation: %w", err)
	}

	for seq, turn := range turns {
		_, err = tx.Exec(
			`INSERT INTO turns (conversation_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			id, seq, turn.Role, turn.Content,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit conversation: %w", err)
	}

	return id, nil
}

// GetRecentByUser returns recent conversations for a user, newest first,
// with turns loaded in original order
func (s *ConversationStorage) GetRecentByUser(userID string, limit int) ([]*ConversationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, user_id, model, created_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	records, err := s.scanConversationRows(rows)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.Turns, err = s.loadTurns(record.ID); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// loadTurns loads the ordered turn list for one conversation
func (s *ConversationStorage) loadTurns(conversationID string) ([]TurnRecord, error) {
	rows, err := s.db.Query(
		`SELECT role, content FROM turns WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var turn TurnRecord
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// scanConversationRows scans database rows into ConversationRecord structs
func (s *ConversationStorage) scanConversationRows(rows *sql.Rows) ([]*ConversationRecord, error) {
	var records []*ConversationRecord
	for rows.Next() {
		var record ConversationRecord
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Model,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		var err error
		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}
