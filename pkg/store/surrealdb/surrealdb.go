// Package surrealdb implements [store.Store] on SurrealDB using native
// SurrealQL through the official Go SDK.
//
// The connection is configured with the surrealcbor codec so that time.Time
// values and typed record ids marshal in the format SurrealDB expects, and
// uses the gorilla-backed websocket transport. All queries with
// caller-supplied values are parameterized ($param syntax); nothing is ever
// interpolated into query text.
//
// ReadableID assignment uses a dedicated counter record updated with a
// single-statement increment, which SurrealDB executes atomically. This
// replaces a read-highest-then-insert pattern, which loses a race between
// concurrent inserts.
//
// Annotation mutations use SurrealDB's array `+=` / `-=` operators on the
// sentence record. `-=` removes every element equal to the operand, which
// gives remove-annotation its remove-all-exact-matches contract for free.
// An UPDATE addressed to a record that does not exist mutates nothing and
// reports success, which is exactly the silent no-op the API promises.
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/lgessler/ali/pkg/models"
	"github.com/lgessler/ali/pkg/store"
)

// counterID addresses the sentence counter record. Using a fixed record id
// means every insert contends on the same row, and the single-statement
// increment keeps that contention safe.
const counterID = "sentences"

// Store implements store.Store on a SurrealDB connection.
type Store struct {
	db *surrealdb.DB
	ns string
	dd string
}

var _ store.Store = (*Store)(nil)

// New connects to SurrealDB over websocket with the surrealcbor codec,
// authenticates when credentials are given, and selects the namespace and
// database.
func New(ctx context.Context, wsURL, namespace, database, username, password string) (*Store, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)

	// The default codec mangles time.Time and RecordID values; surrealcbor
	// matches SurrealDB's internal CBOR format.
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &Store{db: db, ns: namespace, dd: database}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

// handleNotFound maps the SDK's empty-result errors to nil so callers can
// treat a missing record as (nil, nil).
func handleNotFound(err error) error {
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "Expected a single or multiple results but got 0") ||
			strings.Contains(errStr, "cannot unmarshal array into Go value") {
			return nil
		}
	}
	return err
}

// nextReadableID increments the sentence counter and returns the new value.
// UPSERT creates the counter record on first use; the increment and read
// happen in one statement, so concurrent inserts always observe distinct
// values.
func (s *Store) nextReadableID(ctx context.Context) (int64, error) {
	type counter struct {
		Value int64 `json:"value"`
	}
	query := "UPSERT counter:" + counterID + " SET value += 1 RETURN AFTER"
	result, err := surrealdb.Query[[]counter](ctx, s.db, query, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sentence counter: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return 0, fmt.Errorf("sentence counter returned no rows")
	}
	return (*result)[0].Result[0].Value, nil
}

// CreateSentence assigns id, ReadableID and CreatedAt, then inserts the
// document.
func (s *Store) CreateSentence(ctx context.Context, sentence *models.Sentence) error {
	if sentence.ID.IsZero() {
		sentence.ID = models.NewSentenceID()
	}
	if sentence.CreatedAt.IsZero() {
		sentence.CreatedAt = time.Now()
	}

	readableID, err := s.nextReadableID(ctx)
	if err != nil {
		return err
	}
	sentence.ReadableID = readableID

	rid := sentence.ID.RecordID()
	if _, err := surrealdb.Create[models.Sentence](ctx, s.db, rid, sentence); err != nil {
		return fmt.Errorf("failed to create sentence: %w", err)
	}
	return nil
}

func (s *Store) GetSentence(ctx context.Context, id models.SentenceID) (*models.Sentence, error) {
	rid := id.RecordID()
	sentence, err := surrealdb.Select[models.Sentence](ctx, s.db, rid)
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sentence: %w", err)
	}
	return sentence, nil
}

func (s *Store) ListSentences(ctx context.Context) ([]*models.Sentence, error) {
	query := "SELECT * FROM sentences ORDER BY readableId"
	result, err := surrealdb.Query[[]models.Sentence](ctx, s.db, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list sentences: %w", err)
	}

	var sentences []*models.Sentence
	if result != nil && len(*result) > 0 {
		for i := range (*result)[0].Result {
			sentences = append(sentences, &(*result)[0].Result[i])
		}
	}
	return sentences, nil
}

// DeleteSentence deletes by id. Deleting a record that does not exist is not
// an error.
func (s *Store) DeleteSentence(ctx context.Context, id models.SentenceID) error {
	rid := id.RecordID()
	if _, err := surrealdb.Delete[models.Sentence](ctx, s.db, rid); err != nil {
		if handleNotFound(err) == nil {
			return nil
		}
		return fmt.Errorf("failed to delete sentence: %w", err)
	}
	return nil
}

func (s *Store) AddAnnotation(ctx context.Context, id models.SentenceID, a models.Annotation) error {
	query := "UPDATE $sentence SET annotations += $annotation"
	params := map[string]any{
		"sentence":   id.RecordID(),
		"annotation": a,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, query, params); err != nil {
		return fmt.Errorf("failed to add annotation: %w", err)
	}
	return nil
}

func (s *Store) RemoveAnnotation(ctx context.Context, id models.SentenceID, a models.Annotation) error {
	query := "UPDATE $sentence SET annotations -= $annotation"
	params := map[string]any{
		"sentence":   id.RecordID(),
		"annotation": a,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, query, params); err != nil {
		return fmt.Errorf("failed to remove annotation: %w", err)
	}
	return nil
}

func (s *Store) AddSpanAnnotation(ctx context.Context, id models.SentenceID, a models.SpanAnnotation) error {
	query := "UPDATE $sentence SET spanAnnotations += $annotation"
	params := map[string]any{
		"sentence":   id.RecordID(),
		"annotation": a,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, query, params); err != nil {
		return fmt.Errorf("failed to add span annotation: %w", err)
	}
	return nil
}

func (s *Store) RemoveSpanAnnotation(ctx context.Context, id models.SentenceID, a models.SpanAnnotation) error {
	query := "UPDATE $sentence SET spanAnnotations -= $annotation"
	params := map[string]any{
		"sentence":   id.RecordID(),
		"annotation": a,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, query, params); err != nil {
		return fmt.Errorf("failed to remove span annotation: %w", err)
	}
	return nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = models.NewUserID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	existing, err := s.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return store.ErrDuplicateEmail
	}

	rid := user.ID.RecordID()
	if _, err := surrealdb.Create[models.User](ctx, s.db, rid, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	rid := id.RecordID()
	user, err := surrealdb.Select[models.User](ctx, s.db, rid)
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := "SELECT * FROM users WHERE email = $email"
	params := map[string]any{
		"email": email,
	}
	result, err := surrealdb.Query[[]models.User](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if result != nil && len(*result) > 0 && len((*result)[0].Result) > 0 {
		return &(*result)[0].Result[0], nil
	}
	return nil, nil
}

// SubscribeSentences starts a live query on the sentences table and adapts
// SDK notifications to store.Change values. The cancel func kills the live
// query, which closes the SDK channel and in turn the returned channel.
func (s *Store) SubscribeSentences(ctx context.Context) (<-chan store.Change, func(), error) {
	live, err := surrealdb.Live(ctx, s.db, "sentences", false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start live query: %w", err)
	}

	notifications, err := s.db.LiveNotifications(live.String())
	if err != nil {
		_ = surrealdb.Kill(ctx, s.db, live.String())
		return nil, nil, fmt.Errorf("failed to open live notification channel: %w", err)
	}

	changes := make(chan store.Change)
	go func() {
		defer close(changes)
		for notification := range notifications {
			record, _ := notification.Result.(map[string]any)
			select {
			case changes <- store.Change{
				Action: actionToChange(notification.Action),
				Record: record,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = surrealdb.Kill(context.Background(), s.db, live.String())
	}
	return changes, cancel, nil
}

func actionToChange(a connection.Action) store.ChangeAction {
	switch a {
	case connection.CreateAction:
		return store.ChangeCreate
	case connection.UpdateAction:
		return store.ChangeUpdate
	case connection.DeleteAction:
		return store.ChangeDelete
	default:
		return store.ChangeAction(string(a))
	}
}
