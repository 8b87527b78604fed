package ratelimiting

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type globalRateState struct {
	MaximumRequests uint64
	Period          time.Duration

	ResetTime time.Time
	Requests  atomic.Uint64
}

// GlobalRateLimiter caps the total requests per period across all callers.
// A maximum of zero disables limiting.
type GlobalRateLimiter struct {
	lock  sync.Mutex
	state atomic.Pointer[globalRateState]
}

var _ RateLimiter = (*GlobalRateLimiter)(nil)

func calculateAlignedResetTime(now time.Time, period time.Duration) time.Time {
	// we align the start time to the beginning of the period
	timeNs := now.UnixNano()
	periodNs := int64(period / time.Nanosecond)
	alignedNowNs := (timeNs / periodNs) * periodNs
	alignedNow := time.Unix(0, alignedNowNs)
	return alignedNow.Add(period)
}

func NewGlobalRateLimiter(maximumRequests uint64, period time.Duration) *GlobalRateLimiter {
	now := time.Now()

	state := &globalRateState{
		Period:          period,
		MaximumRequests: maximumRequests,
		ResetTime:       calculateAlignedResetTime(now, period),
	}

	limiter := &GlobalRateLimiter{}
	limiter.state.Store(state)

	return limiter
}

func (l *GlobalRateLimiter) getState() *globalRateState {
	state := l.state.Load()

	now := time.Now()
	if !now.Before(state.ResetTime) {
		// we are at the reset time
		l.lock.Lock()
		defer l.lock.Unlock()

		// we need to check again in case another goroutine already updated the state
		state = l.state.Load()
		if now.Before(state.ResetTime) {
			// someone else already reset the state
			return state
		}

		state = &globalRateState{
			MaximumRequests: state.MaximumRequests,
			Period:          state.Period,
			ResetTime:       calculateAlignedResetTime(now, state.Period),
		}
		l.state.Store(state)

		return state
	}

	return state
}

func (l *GlobalRateLimiter) checkAllowed() bool {
	state := l.getState()
	reqNum := state.Requests.Add(1)

	if state.MaximumRequests == 0 {
		return true
	}

	// we use <= rather than < here because reqNum is 1-based
	return reqNum <= state.MaximumRequests
}

// ResetAndUpdateRateLimit updates the rate limit for this limiter. Note that
// this resets the rate limit state as part of performing the update.
func (l *GlobalRateLimiter) ResetAndUpdateRateLimit(maximumRequests uint64, period time.Duration) {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := time.Now()
	state := &globalRateState{
		MaximumRequests: maximumRequests,
		Period:          period,
		ResetTime:       calculateAlignedResetTime(now, period),
	}
	l.state.Store(state)
}

func (l *GlobalRateLimiter) HttpMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.checkAllowed() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
