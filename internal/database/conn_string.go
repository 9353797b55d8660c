package database

import (
	"net/url"
	"strconv"

	"github.com/rickgao/wsbridge/internal/config"
)

// ApplicationName is reported to PostgreSQL as application_name.
const ApplicationName = "wsbridge"

// BuildConnString builds a PostgreSQL connection URL from config.
// The password is escaped so special characters survive.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
