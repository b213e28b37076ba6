package utils

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// InitSentry enables error reporting when a DSN is configured
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

// LogError logs errors with structured context to both console and Sentry
func LogError(errorType string, err error, context map[string]interface{}) {
	log := logrus.WithFields(logrus.Fields{
		"error_type": errorType,
		"error":      err.Error(),
	})

	for k, v := range context {
		log = log.WithField(k, v)
	}

	log.Error("Error occurred")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// LogEvent logs events with structured context
func LogEvent(eventType string, data map[string]interface{}) {
	log := logrus.WithFields(logrus.Fields{
		"event_type": eventType,
	})

	for k, v := range data {
		log = log.WithField(k, v)
	}

	log.Info("Event occurred")

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "info",
		Category:  eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
}
