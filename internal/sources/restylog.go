package sources

import (
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// restyLogger routes resty diagnostics, retries included, to the global
// zerolog logger.
type restyLogger struct{}

var _ resty.Logger = restyLogger{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	restyEvent(log.Error(), format, v)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	restyEvent(log.Warn(), format, v)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	restyEvent(log.Debug(), format, v)
}

func restyEvent(e *zerolog.Event, format string, v []interface{}) {
	e.Str("component", "resty").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
