package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrNotParticipant       = errors.New("user is not a conversation participant")
	ErrEmptyParticipants    = errors.New("participant set is empty")
	ErrTxConflict           = errors.New("transaction conflict")
)

// translateTxError maps Postgres serialization failures and deadlocks to
// ErrTxConflict so callers can retry or surface a conflict.
func translateTxError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return ErrTxConflict
		}
	}
	return err
}
