package logging

import "github.com/sirupsen/logrus"

// LevelFromWorker maps a log level string from a worker `log` notification
// onto a logrus level. Unrecognized levels degrade to trace rather than being
// dropped, so worker diagnostics are never lost entirely.
func LevelFromWorker(level string) logrus.Level {
	switch level {
	case "error":
		return logrus.ErrorLevel
	case "warning":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
