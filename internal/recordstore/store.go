// Package recordstore is the primary store of record for user-facing
// entities: documents, chat messages and employee profiles.
//
// Vector ingestion is invoked only after an insert here has succeeded and
// never participates in it; a failed ingestion leaves the record intact.
package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Collection names shared with the vector store indexes.
const (
	CollectionDocuments    = "documents"
	CollectionChatMessages = "chat_messages"
	CollectionEmployees    = "employees"
)

// Document is a registered knowledge base document.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Filename  string    `json:"filename"`
	CloudLink string    `json:"cloud_link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is one stored conversation turn.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Employee is a directory profile.
type Employee struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Position  string    `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists records in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			filename TEXT NOT NULL,
			cloud_link TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_created ON chat_messages(created_at);`,
		`CREATE TABLE IF NOT EXISTS employees (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL,
			position TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// InsertDocument stores a new document and returns it with its generated id.
func (s *Store) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	doc.ID = uuid.NewString()
	doc.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, category, filename, cloud_link, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Category, doc.Filename, doc.CloudLink, doc.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return Document{}, fmt.Errorf("inserting document: %w", err)
	}
	return doc, nil
}

// ListRecentDocuments returns the most recently added documents, newest first.
func (s *Store) ListRecentDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, category, filename, cloud_link, created_at FROM documents ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var createdAt int64
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Category, &doc.Filename, &doc.CloudLink, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.CreatedAt = time.UnixMicro(createdAt).UTC()
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// InsertChatMessage stores a conversation turn and returns it with its
// generated id.
func (s *Store) InsertChatMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if msg.Role == "" {
		msg.Role = "user"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.ID, msg.Role, msg.Content, msg.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("inserting chat message: %w", err)
	}
	return msg, nil
}

// ListRecentMessages returns the most recent limit conversation turns in
// chronological order (oldest of the window first), the order prompts
// expect history in.
func (s *Store) ListRecentMessages(ctx context.Context, limit int) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at FROM chat_messages ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		msg.CreatedAt = time.UnixMicro(createdAt).UTC()
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// InsertEmployee stores a directory profile and returns it with its
// generated id.
func (s *Store) InsertEmployee(ctx context.Context, emp Employee) (Employee, error) {
	emp.ID = uuid.NewString()
	emp.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employees (id, full_name, email, position, created_at) VALUES (?, ?, ?, ?, ?)`,
		emp.ID, emp.FullName, emp.Email, emp.Position, emp.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return Employee{}, fmt.Errorf("inserting employee: %w", err)
	}
	return emp, nil
}

// ListEmployees returns all directory profiles ordered by name.
func (s *Store) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, full_name, email, position, created_at FROM employees ORDER BY full_name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing employees: %w", err)
	}
	defer rows.Close()

	var emps []Employee
	for rows.Next() {
		var emp Employee
		var createdAt int64
		if err := rows.Scan(&emp.ID, &emp.FullName, &emp.Email, &emp.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning employee: %w", err)
		}
		emp.CreatedAt = time.UnixMicro(createdAt).UTC()
		emps = append(emps, emp)
	}
	return emps, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
