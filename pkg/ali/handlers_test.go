package ali

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgessler/ali/pkg/models"
	"github.com/lgessler/ali/pkg/store"
)

func newTestApp(t *testing.T) (*App, *memStore) {
	t.Helper()
	st := newMemStore()
	config := &Config{
		ServerPort: "0",
		JWTSecret:  "test-secret",
	}
	return NewWithStore(st, config, zerolog.Nop()), st
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func signUp(t *testing.T, router http.Handler, email, name string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"name":     name,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func insertPayload(text string) map[string]any {
	return map[string]any{
		"sentence":        text,
		"annotations":     []any{},
		"spanAnnotations": []any{},
		"zScore":          1.5,
	}
}

func TestInsertSentenceRequiresAuth(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	rec := doJSON(t, router, http.MethodPost, "/api/sentences", "", insertPayload("mii sa iw"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, st.sentenceCount(), "rejected insert must not create a document")
}

func TestInsertSentenceStampsServerFields(t *testing.T) {
	app, _ := newTestApp(t)
	router := app.router()
	token := signUp(t, router, "alice@example.com", "alice")

	rec := doJSON(t, router, http.MethodPost, "/api/sentences", token, insertPayload("mii sa iw"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Sentence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.False(t, created.ID.IsZero())
	assert.Equal(t, int64(1), created.ReadableID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, "alice", created.Username)
	assert.False(t, created.Owner.IsZero())
	assert.Equal(t, "mii sa iw", created.Sentence)
}

func TestInsertSentenceReadableIDsAreSequential(t *testing.T) {
	app, _ := newTestApp(t)
	router := app.router()
	token := signUp(t, router, "alice@example.com", "alice")

	for i := 1; i <= 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/sentences", token,
			insertPayload(fmt.Sprintf("sentence %d", i)))
		require.Equal(t, http.StatusCreated, rec.Code)

		var created models.Sentence
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, int64(i), created.ReadableID)
	}
}

func TestInsertSentenceRejectsMalformedPayloads(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()
	token := signUp(t, router, "alice@example.com", "alice")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing sentence", map[string]any{"annotations": []any{}, "spanAnnotations": []any{}, "zScore": 1.0}},
		{"missing zScore", map[string]any{"sentence": "x", "annotations": []any{}, "spanAnnotations": []any{}}},
		{"unknown field", map[string]any{"sentence": "x", "annotations": []any{}, "spanAnnotations": []any{}, "zScore": 1.0, "extra": true}},
		{"annotation missing value", map[string]any{
			"sentence": "x", "zScore": 1.0, "spanAnnotations": []any{},
			"annotations": []any{map[string]any{"type": "gloss"}},
		}},
		{"annotation value missing end", map[string]any{
			"sentence": "x", "zScore": 1.0, "spanAnnotations": []any{},
			"annotations": []any{map[string]any{"type": "gloss", "value": map[string]any{"begin": 0}}},
		}},
		{"span missing begin", map[string]any{
			"sentence": "x", "zScore": 1.0, "annotations": []any{},
			"spanAnnotations": []any{map[string]any{"type": "ne", "end": 4}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/sentences", token, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Equal(t, 0, st.sentenceCount(), "malformed inserts must not create documents")
}

func TestGetSentence(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	sentence := &models.Sentence{Sentence: "gaawiin"}
	require.NoError(t, st.CreateSentence(context.Background(), sentence))

	rec := doJSON(t, router, http.MethodGet, "/api/sentences/"+sentence.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Sentence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sentence.ID, got.ID)

	rec = doJSON(t, router, http.MethodGet, "/api/sentences/"+models.NewSentenceID().String(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/sentences/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveSentenceIsSilentForMissingIDs(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	sentence := &models.Sentence{Sentence: "niin"}
	require.NoError(t, st.CreateSentence(context.Background(), sentence))

	rec := doJSON(t, router, http.MethodDelete, "/api/sentences/"+sentence.ID.String(), "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, st.sentenceCount())

	// Removing the same id again succeeds and changes nothing.
	rec = doJSON(t, router, http.MethodDelete, "/api/sentences/"+sentence.ID.String(), "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, st.sentenceCount())
}

func TestAnnotationAddRemoveRoundTrip(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	sentence := &models.Sentence{Sentence: "mino-giizhigad"}
	require.NoError(t, st.CreateSentence(context.Background(), sentence))
	path := "/api/sentences/" + sentence.ID.String() + "/annotations"

	ann := map[string]any{"type": "gloss", "value": map[string]any{"begin": 0, "end": 4}}
	rec := doJSON(t, router, http.MethodPost, path, "", ann)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	// A second identical annotation is allowed.
	rec = doJSON(t, router, http.MethodPost, path, "", ann)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := st.GetSentence(context.Background(), sentence.ID)
	require.NoError(t, err)
	require.Len(t, got.Annotations, 2)

	// Removal takes out every exact match at once.
	rec = doJSON(t, router, http.MethodDelete, path, "", ann)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = st.GetSentence(context.Background(), sentence.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Annotations)
}

func TestAnnotationMalformedPayloadDoesNotMutate(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	sentence := &models.Sentence{Sentence: "aaniin"}
	require.NoError(t, st.CreateSentence(context.Background(), sentence))
	path := "/api/sentences/" + sentence.ID.String() + "/annotations"

	rec := doJSON(t, router, http.MethodPost, path, "", map[string]any{"type": "gloss"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, path, "", map[string]any{
		"type": "gloss", "value": map[string]any{"begin": "zero", "end": 4},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got, err := st.GetSentence(context.Background(), sentence.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Annotations)
}

func TestSpanAnnotationAddRemoveRoundTrip(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	sentence := &models.Sentence{Sentence: "waabooz"}
	require.NoError(t, st.CreateSentence(context.Background(), sentence))
	path := "/api/sentences/" + sentence.ID.String() + "/spans"

	span := map[string]any{"type": "ne", "begin": 0, "end": 7}
	rec := doJSON(t, router, http.MethodPost, path, "", span)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := st.GetSentence(context.Background(), sentence.ID)
	require.NoError(t, err)
	require.Len(t, got.SpanAnnotations, 1)
	assert.Equal(t, models.SpanAnnotation{Type: "ne", Begin: 0, End: 7}, got.SpanAnnotations[0])

	rec = doJSON(t, router, http.MethodDelete, path, "", span)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = st.GetSentence(context.Background(), sentence.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SpanAnnotations)

	// Each field is checked individually before any mutation.
	rec = doJSON(t, router, http.MethodPost, path, "", map[string]any{"type": "ne", "begin": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, router, http.MethodPost, path, "", map[string]any{"begin": 0, "end": 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportTSVReturnsReportWithoutPersisting(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()
	token := signUp(t, router, "alice@example.com", "alice")

	corpus := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "sentence\tgloss\nmii sa iw\tthat's it\ngaawiin\tno\n")
	}))
	defer corpus.Close()

	rec := doJSON(t, router, http.MethodPost, "/api/sentences/import", token, map[string]string{
		"url":      corpus.URL,
		"filename": "corpus.tsv",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Rows    int `json:"rows"`
		Columns int `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 2, report.Columns)

	// Import reports; it never writes to the collection.
	assert.Equal(t, 0, st.sentenceCount())
}

func TestImportTSVSurfacesFetchErrors(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()
	token := signUp(t, router, "alice@example.com", "alice")

	rec := doJSON(t, router, http.MethodPost, "/api/sentences/import", token, map[string]string{
		"url":      "http://127.0.0.1:1/nope",
		"filename": "corpus.tsv",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
	assert.Equal(t, 0, st.sentenceCount())

	rec = doJSON(t, router, http.MethodPost, "/api/sentences/import", token, map[string]string{
		"url": "http://127.0.0.1:1/nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportTSVRequiresAuth(t *testing.T) {
	app, _ := newTestApp(t)
	router := app.router()

	rec := doJSON(t, router, http.MethodPost, "/api/sentences/import", "", map[string]string{
		"url": "http://example.com", "filename": "corpus.tsv",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSearchMatchesAgainstCollection(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	for _, text := range []string{"the quick brown fox", "a slow brown dog", "nothing here"} {
		require.NoError(t, st.CreateSentence(context.Background(), &models.Sentence{Sentence: text}))
	}

	rec := doJSON(t, router, http.MethodGet,
		"/api/sentences/search?q=the+quick+brown+fox&begin=10&end=15&mode=words&fuzzy=false", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result  string `json:"result"`
		Matches []struct {
			Sentence string `json:"sentence"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MATCH", resp.Result)
	require.Len(t, resp.Matches, 2)

	rec = doJSON(t, router, http.MethodGet,
		"/api/sentences/search?q=zebra&begin=0&end=5&mode=words", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NO MATCH", resp.Result)
	assert.Empty(t, resp.Matches)

	rec = doJSON(t, router, http.MethodGet, "/api/sentences/search?q=x&begin=a&end=1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchFuzzyLabelsExactMatchOverall(t *testing.T) {
	app, st := newTestApp(t)
	router := app.router()

	// One line only close to the pattern, one containing it exactly. The
	// overall label must be MATCH regardless of which the store lists
	// first.
	for _, text := range []string{"a quick browne foxx", "the quick brown fox"} {
		require.NoError(t, st.CreateSentence(context.Background(), &models.Sentence{Sentence: text}))
	}

	rec := doJSON(t, router, http.MethodGet,
		"/api/sentences/search?q=quick+brown+fox&begin=0&end=15&fuzzy=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result  string `json:"result"`
		Matches []struct {
			Score  int    `json:"score"`
			Result string `json:"result"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MATCH", resp.Result)
	require.Len(t, resp.Matches, 2)
}

func TestLivePublicationStreamsChanges(t *testing.T) {
	app, st := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, stopLive, err := st.SubscribeSentences(ctx)
	require.NoError(t, err)
	defer stopLive()
	go app.hub.Run(ctx, changes)

	server := httptest.NewServer(app.router())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sentences/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Wait for the subscriber to register before mutating.
	require.Eventually(t, func() bool {
		return app.hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	sentence := &models.Sentence{Sentence: "boozhoo"}
	require.NoError(t, st.CreateSentence(context.Background(), sentence))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var change store.Change
	require.NoError(t, conn.ReadJSON(&change))
	assert.Equal(t, store.ChangeCreate, change.Action)
	assert.Equal(t, "boozhoo", change.Record["sentence"])
}
