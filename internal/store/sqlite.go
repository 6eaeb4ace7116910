package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/flowentxo/agentinbox/pkg/models"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			agent_name TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			pending_approval_id TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			unread_count INTEGER NOT NULL DEFAULT 0,
			last_activity_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES threads(id),
			role TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES threads(id),
			message_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			params TEXT,
			preview TEXT,
			status TEXT NOT NULL,
			resolver_id TEXT,
			comment TEXT,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			resolved_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_thread_status ON approvals(thread_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_expiry ON approvals(status, expires_at)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil {
		return errors.New("thread is required")
	}
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now()
	}
	thread.UpdatedAt = thread.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, user_id, agent_id, agent_name, status, pending_approval_id,
			message_count, unread_count, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		thread.ID, thread.UserID, thread.AgentID, thread.AgentName,
		string(thread.State.Status()), thread.State.ApprovalID(),
		thread.MessageCount, thread.UnreadCount,
		nullTime(thread.LastActivityAt), thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, agent_id, agent_name, status, pending_approval_id,
			message_count, unread_count, last_activity_at, created_at, updated_at
		FROM threads WHERE id = ?`, id)
	return scanThread(row)
}

func (s *SQLiteStore) UpdateThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil {
		return errors.New("thread is required")
	}
	thread.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE threads SET agent_id = ?, agent_name = ?, status = ?, pending_approval_id = ?,
			message_count = ?, unread_count = ?, last_activity_at = ?, updated_at = ?
		WHERE id = ?`,
		thread.AgentID, thread.AgentName,
		string(thread.State.Status()), thread.State.ApprovalID(),
		thread.MessageCount, thread.UnreadCount,
		nullTime(thread.LastActivityAt), thread.UpdatedAt, thread.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrThreadNotFound
	}
	return nil
}

func (s *SQLiteStore) ListThreads(ctx context.Context, opts ListOptions) ([]*models.Thread, error) {
	query := `
		SELECT id, user_id, agent_id, agent_name, status, pending_approval_id,
			message_count, unread_count, last_activity_at, created_at, updated_at
		FROM threads WHERE 1=1`
	var args []any
	if opts.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if !opts.IncludeArchived {
		query += " AND status != ?"
		args = append(args, string(models.ThreadArchived))
	}
	query += " ORDER BY last_activity_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var result []*models.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, thread)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.ThreadID = threadID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		encoded, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		toolCalls = string(encoded)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, role, type, content, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, threadID, string(msg.Role), string(msg.Type), msg.Content, toolCalls, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	unreadDelta := 0
	if msg.Role == models.RoleAgent {
		unreadDelta = 1
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE threads SET message_count = message_count + 1,
			unread_count = unread_count + ?,
			last_activity_at = ?, updated_at = ?
		WHERE id = ?`,
		unreadDelta, msg.CreatedAt, msg.CreatedAt, threadID,
	)
	if err != nil {
		return fmt.Errorf("failed to bump thread counters: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrThreadNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetHistory(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, thread_id, role, type, content, tool_calls, created_at
		FROM (
			SELECT * FROM messages WHERE thread_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		var msg models.Message
		var role, msgType string
		var toolCalls sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &role, &msgType, &msg.Content, &toolCalls, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		msg.Type = models.MessageType(msgType)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls for message %s: %w", msg.ID, err)
			}
		}
		result = append(result, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if result == nil {
		// Distinguish empty history from an unknown thread.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM threads WHERE id = ?`, threadID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrThreadNotFound
			}
			return nil, err
		}
	}
	return result, nil
}

func (s *SQLiteStore) CreateApproval(ctx context.Context, approval *models.Approval) error {
	if approval == nil {
		return errors.New("approval is required")
	}
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = time.Now()
	}

	var params any
	if len(approval.Params) > 0 {
		params = string(approval.Params)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, thread_id, message_id, action_type, params, preview,
			status, resolver_id, comment, created_at, expires_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		approval.ID, approval.ThreadID, approval.MessageID, approval.ActionType,
		params, approval.Preview, string(approval.Status),
		approval.ResolverID, approval.Comment,
		approval.CreatedAt, nullTime(approval.ExpiresAt), nullTime(approval.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx, approvalSelect+` WHERE id = ?`, id)
	return scanApproval(row)
}

func (s *SQLiteStore) PendingApproval(ctx context.Context, threadID string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		approvalSelect+` WHERE thread_id = ? AND status = ? LIMIT 1`,
		threadID, string(models.ApprovalPending))
	return scanApproval(row)
}

func (s *SQLiteStore) QueuedApprovals(ctx context.Context, threadID string) ([]*models.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		approvalSelect+` WHERE thread_id = ? AND status = ? ORDER BY created_at ASC, id ASC`,
		threadID, string(models.ApprovalQueued))
	if err != nil {
		return nil, fmt.Errorf("failed to list queued approvals: %w", err)
	}
	defer rows.Close()
	return collectApprovals(rows)
}

func (s *SQLiteStore) TransitionApproval(ctx context.Context, id string, from, to models.ApprovalStatus, resolverID, comment string) (*models.Approval, error) {
	var result sql.Result
	var err error
	if to.Terminal() {
		result, err = s.db.ExecContext(ctx, `
			UPDATE approvals SET status = ?, resolver_id = ?, comment = ?, resolved_at = ?
			WHERE id = ? AND status = ?`,
			string(to), resolverID, comment, time.Now(), id, string(from))
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE approvals SET status = ? WHERE id = ? AND status = ?`,
			string(to), id, string(from))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Conflict or missing row; distinguish for the caller.
		if _, err := s.GetApproval(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrApprovalConflict
	}
	return s.GetApproval(ctx, id)
}

func (s *SQLiteStore) StalePending(ctx context.Context, before time.Time) ([]*models.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		approvalSelect+` WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY created_at ASC`,
		string(models.ApprovalPending), before)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale approvals: %w", err)
	}
	defer rows.Close()
	return collectApprovals(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*models.Thread, error) {
	var thread models.Thread
	var status, approvalID string
	var lastActivity sql.NullTime
	err := row.Scan(&thread.ID, &thread.UserID, &thread.AgentID, &thread.AgentName,
		&status, &approvalID, &thread.MessageCount, &thread.UnreadCount,
		&lastActivity, &thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	state, err := models.StateFromStorage(models.ThreadStatus(status), approvalID)
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", thread.ID, err)
	}
	thread.State = state
	if lastActivity.Valid {
		thread.LastActivityAt = lastActivity.Time
	}
	return &thread, nil
}

const approvalSelect = `
	SELECT id, thread_id, message_id, action_type, params, preview,
		status, resolver_id, comment, created_at, expires_at, resolved_at
	FROM approvals`

func scanApproval(row rowScanner) (*models.Approval, error) {
	var approval models.Approval
	var status string
	var params, resolverID, comment sql.NullString
	var expiresAt, resolvedAt sql.NullTime
	err := row.Scan(&approval.ID, &approval.ThreadID, &approval.MessageID,
		&approval.ActionType, &params, &approval.Preview,
		&status, &resolverID, &comment,
		&approval.CreatedAt, &expiresAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApprovalNotFound
		}
		return nil, err
	}
	approval.Status = models.ApprovalStatus(status)
	if params.Valid && params.String != "" {
		approval.Params = json.RawMessage(params.String)
	}
	approval.ResolverID = resolverID.String
	approval.Comment = comment.String
	if expiresAt.Valid {
		approval.ExpiresAt = expiresAt.Time
	}
	if resolvedAt.Valid {
		approval.ResolvedAt = resolvedAt.Time
	}
	return &approval, nil
}

func collectApprovals(rows *sql.Rows) ([]*models.Approval, error) {
	var result []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, approval)
	}
	return result, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
