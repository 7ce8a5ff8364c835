package demohttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Greeting is the body of every demo response.
const Greeting = "helloword."

// CookieName is the cookie holding the response time in Unix milliseconds.
const CookieName = "tm"

// greeter answers every request with Greeting.
type greeter struct {
	logger *slog.Logger
	now    func() time.Time
}

func (g *greeter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.logger.Info("demo request",
		slog.String("method", r.Method),
		slog.String("url", r.URL.String()),
		slog.String("request_id", RequestIDFromContext(r.Context())),
	)

	http.SetCookie(w, &http.Cookie{
		Name:  CookieName,
		Value: strconv.FormatInt(g.now().UnixMilli(), 10),
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(Greeting))
}

// NewHandler returns the demo handler wrapped in request ID and panic
// recovery middleware. A nil logger uses slog.Default.
func NewHandler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return Chain(
		&greeter{logger: logger, now: time.Now},
		RequestID(false),
		Recovery(logger),
	)
}

// NewServer returns an http.Server for handler listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
