package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogExtraction logs the outcome of a single unit extraction
func LogExtraction(unitID, unitType string, success bool, err error) {
	log := GetLogger()

	fields := map[string]interface{}{
		"unit_id":   unitID,
		"unit_type": unitType,
		"success":   success,
	}

	if success {
		log.InfoWithFields("unit extracted", fields)
	} else {
		if err != nil {
			fields["error"] = err.Error()
		}
		log.ErrorWithFields("unit extraction failed", fields)
	}
}

// LogProgress logs overall extraction progress
func LogProgress(extracted, total int, percentage float64) {
	GetLogger().InfoWithFields("extraction progress", map[string]interface{}{
		"extracted_looks": extracted,
		"total_looks":     total,
		"percentage":      percentage,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	fields := map[string]interface{}{
		"component": component,
	}
	for k, v := range config {
		fields[k] = v
	}
	GetLogger().InfoWithFields("component started", fields)
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().InfoWithFields("component stopped", map[string]interface{}{
		"component": component,
		"reason":    reason,
	})
}

// NewNopLogger returns a logger that discards everything, for tests
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
