package realtime

import (
	"fmt"
	"strings"

	"github.com/dbwatch/dbwatch/internal/model"
)

// realtimeURL rewrites the Supabase project URL's scheme to its
// websocket equivalent and appends the Realtime path.
func realtimeURL(cfg model.SupabaseConfig) string {
	base := strings.Replace(cfg.URL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return fmt.Sprintf("%s/realtime/v1/websocket?apikey=%s&vsn=1.0.0", base, cfg.AnonKey)
}
