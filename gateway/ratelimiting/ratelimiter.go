package ratelimiting

import (
	"net/http"
)

type RateLimiter interface {
	HttpMiddleware(next http.Handler) http.Handler
}
