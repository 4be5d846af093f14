// Package store defines the persistence interface for the sentence
// collection. Implementations live in subpackages; the interface keeps
// handlers free of any storage-client types so a fake can stand in during
// tests.
package store

import (
	"context"
	"errors"

	"github.com/lgessler/ali/pkg/models"
)

// ErrDuplicateEmail is returned by CreateUser when the email is taken.
var ErrDuplicateEmail = errors.New("store: email already registered")

// ChangeAction identifies what happened to a record in a change feed.
type ChangeAction string

const (
	ChangeCreate ChangeAction = "CREATE"
	ChangeUpdate ChangeAction = "UPDATE"
	ChangeDelete ChangeAction = "DELETE"
)

// Change is one live-query notification: the action plus the record as the
// store reported it.
type Change struct {
	Action ChangeAction   `json:"action"`
	Record map[string]any `json:"record"`
}

// Store is the persistence contract for the sentence collection and user
// accounts.
//
// Mutations against a nonexistent sentence id are silent no-ops: the store
// returns nil and mutates nothing. Only transport-level failures surface as
// errors.
type Store interface {
	// CreateSentence stamps CreatedAt and assigns ReadableID from an atomic
	// counter before inserting the document.
	CreateSentence(ctx context.Context, s *models.Sentence) error
	GetSentence(ctx context.Context, id models.SentenceID) (*models.Sentence, error)
	ListSentences(ctx context.Context) ([]*models.Sentence, error)
	DeleteSentence(ctx context.Context, id models.SentenceID) error

	AddAnnotation(ctx context.Context, id models.SentenceID, a models.Annotation) error
	// RemoveAnnotation removes every entry matching both type and value
	// exactly.
	RemoveAnnotation(ctx context.Context, id models.SentenceID, a models.Annotation) error
	AddSpanAnnotation(ctx context.Context, id models.SentenceID, a models.SpanAnnotation) error
	// RemoveSpanAnnotation removes every entry matching type, begin and end
	// exactly.
	RemoveSpanAnnotation(ctx context.Context, id models.SentenceID, a models.SpanAnnotation) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id models.UserID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// SubscribeSentences opens a live query over the sentence collection.
	// The returned cancel func kills the live query and closes the channel.
	SubscribeSentences(ctx context.Context) (<-chan Change, func(), error)

	Close() error
}
