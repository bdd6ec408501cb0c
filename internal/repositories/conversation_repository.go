package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"conversation-service/internal/models"
)

// ConversationRepository abstracts conversation persistence. Every mutating
// method is an atomic state transition: either all of its record writes
// commit, or none do.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, creatorID string, participantIDs []string) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
	MarkRead(ctx context.Context, conversationID string, userID string) error
	DeleteConversation(ctx context.Context, conversationID string) (models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, latest_message_id, created_at, updated_at`

// CreateConversation creates a conversation with one participant record per
// user id. Only the creator starts with has_seen_latest_message = TRUE.
func (r *ConversationRepo) CreateConversation(ctx context.Context, creatorID string, participantIDs []string) (models.Conversation, error) {
	participantIDs = lo.Uniq(participantIDs)
	if len(participantIDs) == 0 {
		return models.Conversation{}, ErrEmptyParticipants
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (id) VALUES ($1) RETURNING `+conversationColumns,
		uuid.NewString(),
	).StructScan(&conv); err != nil {
		return models.Conversation{}, translateTxError(err)
	}

	for _, userID := range participantIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, has_seen_latest_message) VALUES ($1, $2, $3)`,
			conv.ID, userID, userID == creatorID,
		); err != nil {
			return models.Conversation{}, translateTxError(err)
		}
	}

	if conv.Participants, err = loadParticipants(ctx, tx, conv.ID); err != nil {
		return models.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, translateTxError(err)
	}
	return conv, nil
}

// GetConversation fetches a conversation with its roster and latest message.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return r.populate(ctx, conv)
}

// ListConversations returns every conversation the user participates in,
// most recently updated first.
func (r *ConversationRepo) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	query := `SELECT c.id, c.latest_message_id, c.created_at, c.updated_at FROM conversations c
        JOIN conversation_participants cp ON cp.conversation_id = c.id
        WHERE cp.user_id = $1
        ORDER BY c.updated_at DESC`
	if err := r.db.SelectContext(ctx, &convs, query, userID); err != nil {
		return nil, err
	}

	for i := range convs {
		populated, err := r.populate(ctx, convs[i])
		if err != nil {
			return nil, err
		}
		convs[i] = populated
	}
	return convs, nil
}

// IsParticipant checks whether the user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// MarkRead flips the participant's has_seen_latest_message flag to TRUE.
// Idempotent: re-marking an already read conversation changes nothing.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID string, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversation_participants SET has_seen_latest_message = TRUE WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// DeleteConversation removes the conversation, its participants and all its
// messages in one transaction and returns the pre-delete snapshot.
func (r *ConversationRepo) DeleteConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1 FOR UPDATE`, conversationID,
	).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, translateTxError(err)
	}

	if conv.Participants, err = loadParticipants(ctx, tx, conversationID); err != nil {
		return models.Conversation{}, err
	}

	for _, stmt := range []string{
		`DELETE FROM messages WHERE conversation_id=$1`,
		`DELETE FROM conversation_participants WHERE conversation_id=$1`,
		`DELETE FROM conversations WHERE id=$1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, conversationID); err != nil {
			return models.Conversation{}, translateTxError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, translateTxError(err)
	}
	return conv, nil
}

// populate attaches the roster and, when present, the latest message.
func (r *ConversationRepo) populate(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	var err error
	if conv.Participants, err = loadParticipants(ctx, r.db, conv.ID); err != nil {
		return models.Conversation{}, err
	}
	if conv.LatestMessageID != nil {
		var msg models.Message
		err := r.db.GetContext(ctx, &msg,
			`SELECT id, conversation_id, sender_id, body, created_at FROM messages WHERE id=$1`,
			*conv.LatestMessageID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, err
		}
		if err == nil {
			conv.LatestMessage = &msg
		}
	}
	return conv, nil
}

func loadParticipants(ctx context.Context, q sqlx.QueryerContext, conversationID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := sqlx.SelectContext(ctx, q, &participants,
		`SELECT conversation_id, user_id, has_seen_latest_message FROM conversation_participants
         WHERE conversation_id=$1 ORDER BY user_id`, conversationID)
	return participants, err
}
