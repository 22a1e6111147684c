// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// quietPaths are polled often enough that they only log at debug level.
var quietPaths = map[string]bool{"/healthz": true}

// LogMiddleware logs the method, path, remote address and duration of each request.
// For websocket routes the duration spans the whole connection.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			entry := logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			})
			if quietPaths[r.URL.Path] {
				entry.Debug("http request")
				return
			}
			entry.Info("http request")
		})
	}
}

// LogWebSocketConnect is called once a handler has accepted an upgrade.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr string, path string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}).Info("websocket connected")
}

// LogWebSocketDisconnect logs the end of a websocket; err is the read error
// that ended it, nil for a clean close.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr string, path string, err error) {
	entry := logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	})
	if err != nil {
		entry.WithError(err).Warn("websocket disconnected")
		return
	}
	entry.Info("websocket disconnected")
}
