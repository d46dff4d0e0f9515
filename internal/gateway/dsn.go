package gateway

import (
	"fmt"
	"net/url"

	"github.com/dbwatch/dbwatch/internal/model"
)

// dsn builds a pgx-compatible connection string from a PgConfig.
func dsn(cfg model.PgConfig) string {
	sslmode := "disable"
	if cfg.UseSSL {
		sslmode = "require"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}
