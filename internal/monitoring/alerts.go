// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:     Warn when request exceeds threshold
//   - FlagFetchFailure:    Warn when the upstream image could not be fetched
//   - FlagCodecFailure:    Warn when the image could not be re-encoded
//   - FlagQueueRejected:   Warn when admission turns a request away
//   - FlagPostSendFailure: Error when a failure happens after headers were sent
//   - FlagPanic:           Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 10 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, targetURL string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("url", targetURL).
		Msg("high_latency")
}

// FlagFetchFailure logs an upstream fetch that gave up. The client is redirected.
func (am *AlertManager) FlagFetchFailure(requestID, targetURL string, err error) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("url", targetURL).
		Err(err).
		Msg("fetch_failed")
}

// FlagCodecFailure logs a codec error. The client is redirected.
func (am *AlertManager) FlagCodecFailure(requestID, targetURL, format string, err error) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("url", targetURL).
		Str("format", format).
		Err(err).
		Msg("codec_failed")
}

// FlagQueueRejected logs a request rejected by admission.
func (am *AlertManager) FlagQueueRejected(requestID string, queued int) {
	am.logger.Warn().
		Str("request_id", requestID).
		Int("queued", queued).
		Msg("admission_rejected")
}

// FlagPostSendFailure logs a failure that could not be turned into a redirect.
func (am *AlertManager) FlagPostSendFailure(requestID, targetURL string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("url", targetURL).
		Err(err).
		Msg("failed_after_headers_sent")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
