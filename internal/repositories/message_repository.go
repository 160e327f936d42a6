package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmacy-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// HistoryOptions narrows a history query. Zero values mean "no limit"
// and "from the latest message backwards".
type HistoryOptions struct {
	BeforeID int
	Limit    int
}

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, customerID, pharmacistID int, senderRole models.Role, content string) (models.ChatMessage, error)
	GetConversationMessages(ctx context.Context, customerID, pharmacistID int, opts HistoryOptions) ([]models.ChatMessage, error)
	GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and returns the persisted row with its
// authoritative id and timestamp.
func (r *MessageRepo) CreateMessage(ctx context.Context, customerID, pharmacistID int, senderRole models.Role, content string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (customer_id, pharmacist_id, sender_role, content) VALUES ($1, $2, $3, $4) RETURNING id, customer_id, pharmacist_id, sender_role, content, sent_at`, customerID, pharmacistID, senderRole, content).
		Scan(&msg.ID, &msg.CustomerID, &msg.PharmacistID, &msg.SenderRole, &msg.Content, &msg.SentAt)
	return msg, err
}

// GetConversationMessages returns the persisted backlog for a
// (customer, pharmacist) pair, oldest first.
func (r *MessageRepo) GetConversationMessages(ctx context.Context, customerID, pharmacistID int, opts HistoryOptions) ([]models.ChatMessage, error) {
	query := `SELECT id, customer_id, pharmacist_id, sender_role, content, sent_at
        FROM messages
        WHERE customer_id=$1 AND pharmacist_id=$2`
	args := []interface{}{customerID, pharmacistID}

	if opts.BeforeID > 0 {
		query += fmt.Sprintf(" AND id < $%d", len(args)+1)
		args = append(args, opts.BeforeID)
	}
	if opts.Limit > 0 {
		// Take the newest page; the caller still sees it oldest first.
		query += fmt.Sprintf(" ORDER BY sent_at DESC, id DESC LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	} else {
		query += " ORDER BY sent_at ASC, id ASC"
	}

	var msgs []models.ChatMessage
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, err
	}
	if opts.Limit > 0 {
		reverse(msgs)
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.GetContext(ctx, &msg, `SELECT id, customer_id, pharmacist_id, sender_role, content, sent_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	return msg, err
}

func reverse(msgs []models.ChatMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
