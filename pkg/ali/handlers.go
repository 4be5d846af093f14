package ali

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lgessler/ali/pkg/models"
	"github.com/lgessler/ali/pkg/pattern"
	"github.com/lgessler/ali/pkg/tsv"
)

// Request payloads use pointer fields so that a missing or mistyped field
// is distinguishable from a zero value: every field is shape-checked
// individually before any document mutation happens.

type spanValuePayload struct {
	Begin *int `json:"begin"`
	End   *int `json:"end"`
}

type annotationPayload struct {
	Type  *string           `json:"type"`
	Value *spanValuePayload `json:"value"`
}

func (p annotationPayload) validate() error {
	if p.Type == nil {
		return errors.New("annotation type must be a string")
	}
	if p.Value == nil {
		return errors.New("annotation value must be an object")
	}
	if p.Value.Begin == nil || p.Value.End == nil {
		return errors.New("annotation value begin/end must be numbers")
	}
	return nil
}

func (p annotationPayload) model() models.Annotation {
	return models.Annotation{
		Type:  *p.Type,
		Value: models.Span{Begin: *p.Value.Begin, End: *p.Value.End},
	}
}

type spanAnnotationPayload struct {
	Type  *string `json:"type"`
	Begin *int    `json:"begin"`
	End   *int    `json:"end"`
}

func (p spanAnnotationPayload) validate() error {
	if p.Type == nil {
		return errors.New("span annotation type must be a string")
	}
	if p.Begin == nil {
		return errors.New("span annotation begin must be a number")
	}
	if p.End == nil {
		return errors.New("span annotation end must be a number")
	}
	return nil
}

func (p spanAnnotationPayload) model() models.SpanAnnotation {
	return models.SpanAnnotation{Type: *p.Type, Begin: *p.Begin, End: *p.End}
}

type insertSentenceRequest struct {
	Sentence        *string                 `json:"sentence"`
	Annotations     []annotationPayload     `json:"annotations"`
	SpanAnnotations []spanAnnotationPayload `json:"spanAnnotations"`
	ZScore          *float64                `json:"zScore"`
}

func (r insertSentenceRequest) validate() error {
	if r.Sentence == nil {
		return errors.New("sentence must be a string")
	}
	if r.ZScore == nil {
		return errors.New("zScore must be a number")
	}
	for i, a := range r.Annotations {
		if err := a.validate(); err != nil {
			return fmt.Errorf("annotations[%d]: %w", i, err)
		}
	}
	for i, s := range r.SpanAnnotations {
		if err := s.validate(); err != nil {
			return fmt.Errorf("spanAnnotations[%d]: %w", i, err)
		}
	}
	return nil
}

// decodeStrict decodes a JSON body rejecting unknown fields, so a payload
// that does not match the declared shape fails before any store call.
func decodeStrict(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// handleInsertSentence inserts a new sentence document. The caller must be
// authenticated (enforced by requireAuth); the server stamps readableId,
// createdAt, owner and username.
func (a *App) handleInsertSentence(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req insertSentenceRequest
	if err := decodeStrict(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sentence := &models.Sentence{
		Sentence:        *req.Sentence,
		Annotations:     make([]models.Annotation, 0, len(req.Annotations)),
		SpanAnnotations: make([]models.SpanAnnotation, 0, len(req.SpanAnnotations)),
		ZScore:          *req.ZScore,
		Owner:           user.ID,
		Username:        user.Name,
	}
	for _, p := range req.Annotations {
		sentence.Annotations = append(sentence.Annotations, p.model())
	}
	for _, p := range req.SpanAnnotations {
		sentence.SpanAnnotations = append(sentence.SpanAnnotations, p.model())
	}

	if err := a.store.CreateSentence(r.Context(), sentence); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, sentence)
}

func (a *App) handleGetSentence(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSentenceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sentence ID")
		return
	}

	sentence, err := a.store.GetSentence(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sentence == nil {
		respondError(w, http.StatusNotFound, "Sentence not found")
		return
	}

	respondJSON(w, http.StatusOK, sentence)
}

func (a *App) handleListSentences(w http.ResponseWriter, r *http.Request) {
	sentences, err := a.store.ListSentences(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sentences == nil {
		sentences = []*models.Sentence{}
	}
	respondJSON(w, http.StatusOK, sentences)
}

// handleRemoveSentence deletes by id. Removing a nonexistent id succeeds
// silently and alters nothing.
func (a *App) handleRemoveSentence(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSentenceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sentence ID")
		return
	}

	if err := a.store.DeleteSentence(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleAddAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSentenceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sentence ID")
		return
	}

	var payload annotationPayload
	if err := decodeStrict(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.AddAnnotation(r.Context(), id, payload.model()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRemoveAnnotation removes every annotation matching both type and
// value exactly.
func (a *App) handleRemoveAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSentenceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sentence ID")
		return
	}

	var payload annotationPayload
	if err := decodeStrict(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.RemoveAnnotation(r.Context(), id, payload.model()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleAddSpanAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSentenceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sentence ID")
		return
	}

	var payload spanAnnotationPayload
	if err := decodeStrict(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.AddSpanAnnotation(r.Context(), id, payload.model()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRemoveSpanAnnotation removes every span annotation matching type,
// begin and end exactly.
func (a *App) handleRemoveSpanAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSentenceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sentence ID")
		return
	}

	var payload spanAnnotationPayload
	if err := decodeStrict(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.RemoveSpanAnnotation(r.Context(), id, payload.model()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type importRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// handleImportTSV fetches and parses a TSV file, returning the report to
// the caller. Fetch and parse failures come back as errors rather than
// disappearing into a log line. Parsed rows are reported, not persisted.
func (a *App) handleImportTSV(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeStrict(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	report, err := a.importer.Import(r.Context(), req.URL, req.Filename)
	if err != nil {
		if errors.Is(err, tsv.ErrEmptyFilename) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.log.Error().Err(err).Str("filename", req.Filename).Msg("tsv import failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	a.log.Info().Str("summary", report.Summary()).Msg("tsv import finished")
	respondJSON(w, http.StatusOK, report)
}

type searchResponse struct {
	Result  string          `json:"result"`
	Matches []pattern.Match `json:"matches"`
}

// handleSearch runs a highlighted-span pattern search over the stored
// collection. Query parameters: q (the sentence containing the highlight),
// begin/end (rune offsets of the highlight), mode (sentence|words|morphemes)
// and fuzzy (bool).
func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	begin, err := strconv.Atoi(q.Get("begin"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "begin must be an integer")
		return
	}
	end, err := strconv.Atoi(q.Get("end"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "end must be an integer")
		return
	}
	fuzzy := false
	if f := q.Get("fuzzy"); f != "" {
		fuzzy, err = strconv.ParseBool(f)
		if err != nil {
			respondError(w, http.StatusBadRequest, "fuzzy must be a boolean")
			return
		}
	}

	req := pattern.Request{
		Text:  q.Get("q"),
		Begin: begin,
		End:   end,
		Mode:  pattern.Mode(q.Get("mode")),
		Fuzzy: fuzzy,
	}

	sentences, err := a.store.ListSentences(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	corpus := make([]string, 0, len(sentences))
	for _, s := range sentences {
		corpus = append(corpus, s.Sentence)
	}

	matches, err := pattern.Find(corpus, req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The overall label is the best across matches: any exact match makes
	// the whole response a MATCH even when fuzzy mode admitted partial
	// matches earlier in the corpus.
	resp := searchResponse{Result: pattern.ResultNoMatch, Matches: matches}
	for _, m := range matches {
		resp.Result = m.Result
		if m.Result == pattern.ResultMatch {
			break
		}
	}
	if resp.Matches == nil {
		resp.Matches = []pattern.Match{}
	}
	respondJSON(w, http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The publication is a read-only feed open to any subscriber.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLive upgrades the connection and streams the sentences publication:
// every change to the collection, pushed as JSON, until the client
// disconnects or the hub shuts down.
func (a *App) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		a.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, events := a.hub.Subscribe()
	defer a.hub.Unsubscribe(id)

	// Reader goroutine: its only job is to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "publication closed"),
					time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				a.log.Debug().Err(err).Str("subscriber", id).Msg("dropping live subscriber")
				return
			}
		}
	}
}

// respondJSON sends a JSON response with the given status and payload.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError sends a standardized JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"subscribers": a.hub.SubscriberCount(),
		"time":        time.Now().Unix(),
	})
}
