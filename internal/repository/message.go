package repository

import (
	"context"
	"errors"

	"wequack/internal/domain"
	apperrors "wequack/pkg/errors"
	"wequack/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// ListByGroup returns the history oldest first; ties keep insertion order.
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Message, error)
	LastMessage(ctx context.Context, groupID uuid.UUID) (*domain.Message, error)
	CountUnread(ctx context.Context, groupID, excludingSender uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id int64) error
	// MarkGroupRead flags every unread message of the group not written by
	// readerID and records a receipt for readerID. Returns the affected ids.
	MarkGroupRead(ctx context.Context, groupID, readerID uuid.UUID) ([]int64, error)
	// CreateReadReceipt reports false when the (message, user) receipt already exists.
	CreateReadReceipt(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error)
	ListReceipts(ctx context.Context, messageID int64) ([]*domain.ReadReceipt, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `m.id, m.group_id, m.sender_id, u.username, m.content, m.is_read, m.created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	message := &domain.Message{}
	err := row.Scan(
		&message.ID, &message.GroupID, &message.SenderID, &message.SenderName,
		&message.Content, &message.IsRead, &message.CreatedAt,
	)
	return message, err
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (group_id, sender_id, content, is_read)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.GroupID, message.SenderID, message.Content,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	message.IsRead = false
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`

	message, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err)
		return nil, err
	}
	return message, nil
}

func (r *messageRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.group_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		r.log.Error("Failed to get messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (r *messageRepository) LastMessage(ctx context.Context, groupID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.group_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1
	`

	message, err := scanMessage(r.db.QueryRow(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get last message", "error", err)
		return nil, err
	}
	return message, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, groupID, excludingSender uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE group_id = $1 AND is_read = FALSE AND sender_id <> $2
	`, groupID, excludingSender).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count unread messages", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to mark message read", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}
	return nil
}

func (r *messageRepository) MarkGroupRead(ctx context.Context, groupID, readerID uuid.UUID) ([]int64, error) {
	query := `
		WITH marked AS (
			UPDATE messages SET is_read = TRUE
			WHERE group_id = $1 AND sender_id <> $2 AND is_read = FALSE
			RETURNING id
		)
		INSERT INTO read_receipts (message_id, user_id)
		SELECT id, $2 FROM marked
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id
	`

	rows, err := r.db.Query(ctx, query, groupID, readerID)
	if err != nil {
		r.log.Error("Failed to mark group read", "error", err)
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			r.log.Error("Failed to scan receipt", "error", err)
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *messageRepository) CreateReadReceipt(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO read_receipts (message_id, user_id) VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, userID)
	if err != nil {
		r.log.Error("Failed to create read receipt", "error", err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *messageRepository) ListReceipts(ctx context.Context, messageID int64) ([]*domain.ReadReceipt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, message_id, user_id, read_at FROM read_receipts
		WHERE message_id = $1 ORDER BY read_at, id
	`, messageID)
	if err != nil {
		r.log.Error("Failed to list read receipts", "error", err)
		return nil, err
	}
	defer rows.Close()

	var receipts []*domain.ReadReceipt
	for rows.Next() {
		receipt := &domain.ReadReceipt{}
		if err := rows.Scan(&receipt.ID, &receipt.MessageID, &receipt.UserID, &receipt.ReadAt); err != nil {
			r.log.Error("Failed to scan read receipt", "error", err)
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}
