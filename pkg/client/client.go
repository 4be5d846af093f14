// Package client provides a Go HTTP client library for programmatic access to the ali API.
//
// This package enables developers to build integrations, ingestion scripts, and
// testing tools that interact with the ali annotation service. The client
// provides strongly-typed methods for all API endpoints with proper error
// handling, authentication, and request/response serialization.
//
// # Client Architecture
//
// [Client] implements a REST API client that mirrors the server's endpoint structure:
//   - Sentence management: Insert, list, fetch and remove annotated sentences
//   - Annotation operations: Add and remove point annotations on a sentence
//   - Span operations: Add and remove span annotations on a sentence
//   - TSV import: Fetch and parse remote TSV corpora, returning an import report
//   - Pattern search: Query the collection for highlighted-span matches
//   - Live publication: Subscribe to the sentences collection over a websocket
//
// All operations use the same [github.com/lgessler/ali/pkg/models] entities as
// the server, ensuring type safety and consistency across the API boundary.
//
// # Authentication and Session Management
//
// The client supports token-based authentication:
//   - Sign up new users with email and password
//   - Sign in existing users to obtain authentication tokens
//   - Automatic token inclusion in subsequent requests
//   - Sign out to discard the held token
//
// Tokens are managed automatically by the client and included in the
// Authorization header for all authenticated requests.
//
// # Usage Patterns
//
// Basic client setup:
//
//	c := client.NewClient("http://localhost:8080")
//
//	// Authenticate
//	auth, err := c.SignIn(ctx, "user@example.com", "password")
//	if err != nil {
//		return err
//	}
//
//	// Insert a sentence (token attached automatically)
//	created, err := c.InsertSentence(ctx, &models.Sentence{
//		Sentence: "ojibwemowin onizhishin",
//		ZScore:   0.5,
//	})
//
// Subscribing to the live publication:
//
//	events, stop, err := c.SubscribeSentences(ctx)
//	if err != nil {
//		return err
//	}
//	defer stop()
//	for ev := range events {
//		fmt.Println(ev.Action, ev.Record)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lgessler/ali/pkg/models"
	"github.com/lgessler/ali/pkg/tsv"
)

// Client provides strongly-typed access to the ali REST API.
//
// Client manages HTTP communication, authentication, and serialization for
// all API operations. Instances are safe for concurrent use by multiple
// goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// NewClient creates a new ali API client.
//
// The baseURL should include the protocol and host (e.g., "http://localhost:8080")
// but should not include a trailing slash or API path prefix.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetAuthToken sets the authentication token for the client
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into the target struct
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health checks the health status of the server
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// Sentence management

// InsertSentence inserts a new sentence document. Requires authentication;
// the server fills in ID, readableId, createdAt, owner and username on the
// returned document.
func (c *Client) InsertSentence(ctx context.Context, sentence *models.Sentence) (*models.Sentence, error) {
	req := map[string]any{
		"sentence":        sentence.Sentence,
		"annotations":     sentence.Annotations,
		"spanAnnotations": sentence.SpanAnnotations,
		"zScore":          sentence.ZScore,
	}
	if req["annotations"] == nil {
		req["annotations"] = []models.Annotation{}
	}
	if req["spanAnnotations"] == nil {
		req["spanAnnotations"] = []models.SpanAnnotation{}
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/sentences", req)
	if err != nil {
		return nil, err
	}

	var result models.Sentence
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListSentences retrieves every sentence in the collection
func (c *Client) ListSentences(ctx context.Context) ([]*models.Sentence, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/sentences", nil)
	if err != nil {
		return nil, err
	}

	var result []*models.Sentence
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// GetSentence retrieves a sentence by ID
func (c *Client) GetSentence(ctx context.Context, id models.SentenceID) (*models.Sentence, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/sentences/%s", id), nil)
	if err != nil {
		return nil, err
	}

	var result models.Sentence
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// RemoveSentence deletes a sentence by ID. Removing a nonexistent sentence
// succeeds silently.
func (c *Client) RemoveSentence(ctx context.Context, id models.SentenceID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/sentences/%s", id), nil)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// Annotation operations

// AddAnnotation appends a point annotation to a sentence
func (c *Client) AddAnnotation(ctx context.Context, id models.SentenceID, annotation models.Annotation) error {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/sentences/%s/annotations", id), annotation)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// RemoveAnnotation removes every annotation on the sentence that matches
// both type and value exactly
func (c *Client) RemoveAnnotation(ctx context.Context, id models.SentenceID, annotation models.Annotation) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/sentences/%s/annotations", id), annotation)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// AddSpanAnnotation appends a span annotation to a sentence
func (c *Client) AddSpanAnnotation(ctx context.Context, id models.SentenceID, span models.SpanAnnotation) error {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/sentences/%s/spans", id), span)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// RemoveSpanAnnotation removes every span annotation on the sentence that
// matches type, begin and end exactly
func (c *Client) RemoveSpanAnnotation(ctx context.Context, id models.SentenceID, span models.SpanAnnotation) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/sentences/%s/spans", id), span)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// ImportTSV asks the server to fetch and parse a remote TSV file, returning
// the import report. Requires authentication. An empty url defers to the
// server's configured import base URL.
func (c *Client) ImportTSV(ctx context.Context, url, filename string) (*tsv.Report, error) {
	req := map[string]string{"url": url, "filename": filename}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/sentences/import", req)
	if err != nil {
		return nil, err
	}

	var result tsv.Report
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
