package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"mrsh/internal/apierr"
)

// rateLimit allows requests per window for each client address.
func rateLimit(requests int, window time.Duration, resolver *ClientIPResolver) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(retryAfterSeconds(window))
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(resolver.Key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, apierr.ErrRateLimited)
		}),
	)
}

func retryAfterSeconds(window time.Duration) int {
	if window <= 0 {
		return 1
	}
	return int(math.Ceil(window.Seconds()))
}
