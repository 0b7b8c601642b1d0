package diag

import (
	"github.com/rjboer/godemod/internal/channel"
	"github.com/rjboer/godemod/internal/logging"
)

// StdoutReporter logs each channel's status snapshot via the daemon's
// structured logger instead of a dedicated diagnostics endpoint, for
// deployments that never enable the web hub.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter using logger, or the process
// default if nil.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logging.Subsystem(logger, "diag")}
}

// Report logs one channel's snapshot at info level.
func (r StdoutReporter) Report(ch *channel.Channel) {
	s := snapshotOf(ch)
	r.logger.Info("channel status",
		logging.Field{Key: "ssrc", Value: s.SSRC},
		logging.Field{Key: "freq_hz", Value: s.Freq},
		logging.Field{Key: "demod", Value: s.Demod},
		logging.Field{Key: "squelch", Value: s.Squelch},
		logging.Field{Key: "snr_db", Value: s.SNR},
		logging.Field{Key: "packets_out", Value: s.PacketsOut},
		logging.Field{Key: "errors", Value: s.Errors},
	)
}
