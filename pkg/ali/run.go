package ali

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Run starts the HTTP server.
//
// # API Endpoints
//
// Health check:
//
//	GET  /health, /api/health
//
// Authentication:
//
//	POST /api/auth/signup                          - Register new user account
//	POST /api/auth/signin                          - Authenticate existing user
//	POST /api/auth/signout                         - End user session
//	GET  /api/auth/me                              - Get current authenticated user
//
// Sentences:
//
//	POST   /api/sentences                          - Insert sentence (auth required)
//	GET    /api/sentences                          - List collection snapshot
//	GET    /api/sentences/{id}                     - Get sentence by id
//	DELETE /api/sentences/{id}                     - Remove sentence (silent no-op if absent)
//	POST   /api/sentences/{id}/annotations         - Add point annotation
//	DELETE /api/sentences/{id}/annotations         - Remove matching point annotations
//	POST   /api/sentences/{id}/spans               - Add span annotation
//	DELETE /api/sentences/{id}/spans               - Remove matching span annotations
//	POST   /api/sentences/import                   - Fetch + parse TSV, return report
//	GET    /api/sentences/search                   - Pattern search over the collection
//	GET    /api/sentences/live                     - Websocket publication feed
//
// The publication feed carries every change to the collection to any
// subscriber; it has no access control, matching the published read-only
// feed it replaces.
//
// The server shuts down gracefully on context cancellation, giving active
// requests five seconds to finish.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	router := a.router()

	// Start the publication: one live query on the store feeding the hub.
	pubCtx, stopPub := context.WithCancel(ctx)
	defer stopPub()
	changes, cancelLive, err := a.store.SubscribeSentences(pubCtx)
	if err != nil {
		return fmt.Errorf("failed to start sentences publication: %w", err)
	}
	defer cancelLive()
	go a.hub.Run(pubCtx, changes)

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().Str("addr", addr).Msg("starting ali server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// router assembles the full route table.
func (a *App) router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	// Auth routes
	api.HandleFunc("/auth/signup", a.handleSignUp).Methods("POST")
	api.HandleFunc("/auth/signin", a.handleSignIn).Methods("POST")
	api.HandleFunc("/auth/signout", a.handleSignOut).Methods("POST")
	api.HandleFunc("/auth/me", a.requireAuth(a.handleGetCurrentUser)).Methods("GET")

	// Sentence routes. Registration order matters: the fixed-path routes
	// must precede the {id} routes.
	api.HandleFunc("/sentences/import", a.requireAuth(a.handleImportTSV)).Methods("POST")
	api.HandleFunc("/sentences/search", a.handleSearch).Methods("GET")
	api.HandleFunc("/sentences/live", a.handleLive).Methods("GET")
	api.HandleFunc("/sentences", a.requireAuth(a.handleInsertSentence)).Methods("POST")
	api.HandleFunc("/sentences", a.handleListSentences).Methods("GET")
	api.HandleFunc("/sentences/{id}", a.handleGetSentence).Methods("GET")
	api.HandleFunc("/sentences/{id}", a.handleRemoveSentence).Methods("DELETE")
	api.HandleFunc("/sentences/{id}/annotations", a.handleAddAnnotation).Methods("POST")
	api.HandleFunc("/sentences/{id}/annotations", a.handleRemoveAnnotation).Methods("DELETE")
	api.HandleFunc("/sentences/{id}/spans", a.handleAddSpanAnnotation).Methods("POST")
	api.HandleFunc("/sentences/{id}/spans", a.handleRemoveSpanAnnotation).Methods("DELETE")

	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}
