package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trajectory.predict/internal/monitoring"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// loggingResponseWriter records what the request log line reports: the
// status, the body size and any corpus or run the handler touched.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
	tags       []string
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.written += n
	return n, err
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// tagRequest adds key=value to the log line of the request w belongs to.
// Outside LoggingMiddleware it does nothing.
func tagRequest(w http.ResponseWriter, key, value string) {
	if lrw, ok := w.(*loggingResponseWriter); ok {
		lrw.tags = append(lrw.tags, key+"="+value)
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, body size and duration of
// each request, followed by the corpus and run ids the handler tagged.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		var tags string
		if len(lrw.tags) > 0 {
			tags = " " + strings.Join(lrw.tags, " ")
		}
		monitoring.Logf(
			"[%s] %s %s%s%s %dB %.3fms%s",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			lrw.written, float64(time.Since(start).Nanoseconds())/1e6, tags,
		)
	})
}
