package database

import (
	"fmt"
	"net/url"

	"github.com/dmelnik/streamgather/internal/config"
)

// BuildConnString renders cfg as a postgres:// URL. The password is the
// only free-form segment, so it is percent-escaped; every other field
// is validated or defaulted by the config layer before this runs.
func BuildConnString(cfg config.DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		cfg.SSLMode,
	)
}
