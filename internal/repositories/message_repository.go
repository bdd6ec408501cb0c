package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"conversation-service/internal/models"
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	// AppendMessage inserts the message, moves the conversation's latest-message
	// pointer, marks the sender as having seen the latest message and every
	// other participant as not, all in one transaction. It returns the new
	// message and the post-append conversation snapshot.
	AppendMessage(ctx context.Context, conversationID string, senderID string, body string) (models.Message, models.Conversation, error)
	// ListMessages returns the conversation's messages, newest first.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) AppendMessage(ctx context.Context, conversationID string, senderID string, body string) (models.Message, models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	defer tx.Rollback()

	// Row lock serializes concurrent appends on the same conversation.
	var conv models.Conversation
	err = tx.QueryRowxContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1 FOR UPDATE`, conversationID,
	).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, models.Conversation{}, translateTxError(err)
	}

	var isParticipant bool
	if err := sqlx.GetContext(ctx, tx, &isParticipant,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, senderID); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if !isParticipant {
		return models.Message{}, models.Conversation{}, ErrNotParticipant
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, body) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Body,
	).Scan(&msg.CreatedAt); err != nil {
		return models.Message{}, models.Conversation{}, translateTxError(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET latest_message_id=$2, updated_at=NOW() WHERE id=$1`,
		conversationID, msg.ID); err != nil {
		return models.Message{}, models.Conversation{}, translateTxError(err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation_participants SET has_seen_latest_message = (user_id = $2) WHERE conversation_id=$1`,
		conversationID, senderID); err != nil {
		return models.Message{}, models.Conversation{}, translateTxError(err)
	}

	// Snapshot the post-append state while still inside the transaction.
	err = tx.QueryRowxContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID,
	).StructScan(&conv)
	if err != nil {
		return models.Message{}, models.Conversation{}, translateTxError(err)
	}
	if conv.Participants, err = loadParticipants(ctx, tx, conversationID); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	conv.LatestMessage = &msg

	if err := tx.Commit(); err != nil {
		return models.Message{}, models.Conversation{}, translateTxError(err)
	}
	return msg, conv, nil
}

func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_id, sender_id, body, created_at FROM messages
         WHERE conversation_id=$1
         ORDER BY created_at DESC, id DESC`, conversationID)
	return msgs, err
}
