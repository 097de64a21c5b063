package observability

import (
	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/rs/zerolog"
)

// InitLogger derives a component logger from the process logger.
func InitLogger(app string) zerolog.Logger {
	return logs.Logger().With().Str("app", app).Logger()
}
