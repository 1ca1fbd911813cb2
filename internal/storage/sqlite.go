package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// SQLiteResources implements Resources using SQLite.
type SQLiteResources struct {
	db *sql.DB
}

// NewSQLiteResources opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteResources(dbPath string) (*SQLiteResources, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteResources{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		instructions TEXT NOT NULL,
		tokens INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		model TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tool_functions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		parameters TEXT,
		tokens INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_tools (
		conversation_id TEXT NOT NULL,
		tool_function_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, tool_function_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_call_id TEXT,
		tool_calls TEXT,
		PRIMARY KEY (conversation_id, name)
	);

	CREATE TABLE IF NOT EXISTS experiences (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		tokens INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversation_tools_position ON conversation_tools(conversation_id, position);
	`
	_, err := db.Exec(schema)
	return err
}

// PutAgent inserts or replaces an agent.
func (s *SQLiteResources) PutAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO agents (id, name, instructions, tokens) VALUES (?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Instructions, agent.Tokens,
	)
	return err
}

// PutConversation inserts or replaces a conversation and its tool bindings.
func (s *SQLiteResources) PutConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversations (id, agent_id, model, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.AgentID, conv.Model, conv.CreatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_tools WHERE conversation_id = ?`, conv.ID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conversation_tools (conversation_id, tool_function_id, position) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, toolID := range conv.ToolFunctionIDs {
		if _, err := stmt.ExecContext(ctx, conv.ID, toolID, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutToolFunction inserts or replaces a tool function.
func (s *SQLiteResources) PutToolFunction(ctx context.Context, fn *models.ToolFunction) error {
	paramsJSON, err := json.Marshal(fn.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tool_functions (id, name, description, parameters, tokens) VALUES (?, ?, ?, ?, ?)`,
		fn.ID, fn.Name, fn.Description, string(paramsJSON), fn.Tokens,
	)
	return err
}

// PutMessage stores the content behind a reference-log identifier name.
func (s *SQLiteResources) PutMessage(ctx context.Context, conversationID, name string, msg *models.Message) error {
	var toolCalls string
	if len(msg.ToolCalls) > 0 {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (conversation_id, name, role, content, tool_call_id, tool_calls)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, name, msg.Role, msg.Content, msg.ToolCallID, toolCalls,
	)
	return err
}

// PutExperience inserts or replaces an experience text.
func (s *SQLiteResources) PutExperience(ctx context.Context, exp *models.Experience) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO experiences (id, content, tokens) VALUES (?, ?, ?)`,
		exp.ID, exp.Content, exp.Tokens,
	)
	return err
}

// Conversation returns a conversation with its tool bindings in position order.
func (s *SQLiteResources) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	var model sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, model, created_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.AgentID, &model, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	conv.Model = model.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_function_id FROM conversation_tools WHERE conversation_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var toolID string
		if err := rows.Scan(&toolID); err != nil {
			return nil, err
		}
		conv.ToolFunctionIDs = append(conv.ToolFunctionIDs, toolID)
	}
	return &conv, rows.Err()
}

// Agent returns an agent by ID.
func (s *SQLiteResources) Agent(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, instructions, tokens FROM agents WHERE id = ?`, id,
	).Scan(&agent.ID, &agent.Name, &agent.Instructions, &agent.Tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ToolFunction returns a tool function by ID.
func (s *SQLiteResources) ToolFunction(ctx context.Context, id string) (*models.ToolFunction, error) {
	var fn models.ToolFunction
	var description, paramsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, parameters, tokens FROM tool_functions WHERE id = ?`, id,
	).Scan(&fn.ID, &fn.Name, &description, &paramsJSON, &fn.Tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tool function %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	fn.Description = description.String
	if paramsJSON.String != "" && paramsJSON.String != "null" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &fn.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
		}
	}
	return &fn, nil
}

// Messages hydrates identifiers in the order given.
func (s *SQLiteResources) Messages(ctx context.Context, conversationID string, ids []models.Identifier) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	names := make([]any, 0, len(ids)+1)
	names = append(names, conversationID)
	for _, id := range ids {
		names = append(names, id.Name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, role, content, tool_call_id, tool_calls FROM messages
		 WHERE conversation_id = ? AND name IN (`+placeholders+`)`,
		names...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]models.Message, len(ids))
	for rows.Next() {
		var name string
		var msg models.Message
		var toolCallID, toolCalls sql.NullString
		if err := rows.Scan(&name, &msg.Role, &msg.Content, &toolCallID, &toolCalls); err != nil {
			return nil, err
		}
		msg.ToolCallID = toolCallID.String
		if toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
		}
		byName[name] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msg, ok := byName[id.Name]
		if !ok {
			return nil, fmt.Errorf("message %s in conversation %s: %w", id.Name, conversationID, ErrNotFound)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Describe returns experience content for the given IDs. Unknown IDs are omitted.
func (s *SQLiteResources) Describe(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM experiences WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, err
		}
		out[id] = content
	}
	return out, rows.Err()
}

// CountConversations returns the total number of conversations.
func (s *SQLiteResources) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteResources) Close() error {
	return s.db.Close()
}
