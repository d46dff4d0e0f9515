package boundary

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes builds the boundary's HTTP router. The WS route is mounted
// before the logging middleware group so the upgrade's hijacked
// connection is never wrapped by a response-writer decorator.
func Routes(s *Session) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(LoggingMiddleware(s.log))

		r.Route("/api", func(r chi.Router) {
			r.Post("/testConnection", s.handleTestConnection)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Get("/connectionStatus", s.handleConnectionStatus)

			r.Get("/tables", s.handleGetTables)
			r.Get("/foreignKeys", s.handleGetForeignKeys)
			r.Get("/tableStats", s.handleGetTableStats)
			r.Get("/columns", s.handleGetColumns)
			r.Get("/rowCount", s.handleGetRowCount)
			r.Get("/rows", s.handleGetRows)

			r.Post("/dryRun", s.handleDryRun)

			r.Post("/watch", s.handleStartWatching)
			r.Post("/unwatch", s.handleStopWatching)
			r.Post("/unwatchAll", s.handleStopAllWatching)
			r.Get("/watchedTables", s.handleGetWatchedTables)

			r.Post("/supabase/testConnection", s.handleTestSupabaseConnection)
			r.Post("/supabase/connect", s.handleConnectSupabase)
			r.Post("/supabase/disconnect", s.handleDisconnectSupabase)
			r.Get("/supabase/status", s.handleGetSupabaseStatus)

			r.Get("/profiles", s.handleListProfiles)
			r.Post("/profiles", s.handleSaveProfile)
			r.Delete("/profiles", s.handleDeleteProfile)

			r.Post("/query/tables", s.handleQueryTables)
		})
	})

	zap.L().Debug("boundary routes registered")
	return r
}
