package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/config"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/errs"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/services"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/utils"
)

// ContextualLoggerMiddleware attaches a request-scoped logger carrying a
// generated request id to the request context.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctxLogger := logger.L.With(slog.String("requestID", requestID))
		ctx := logger.ToContext(r.Context(), ctxLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

// RateLimitMiddleware sheds load before it reaches the handlers.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EnableCORS allows the configured frontend origin.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == config.Cfg.FrontendBaseURL {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sendServiceError maps service and upstream errors to HTTP responses.
func sendServiceError(w http.ResponseWriter, err error) {
	var upstream *errs.E
	if errors.As(err, &upstream) {
		status := http.StatusBadGateway
		switch upstream.Code {
		case errs.CodeRateLimited:
			status = http.StatusTooManyRequests
		case errs.CodeInvalid:
			status = http.StatusBadRequest
		case errs.CodeRetryExhausted:
			status = http.StatusServiceUnavailable
		case errs.CodeConflict:
			status = http.StatusConflict
		case errs.CodeExchange:
			if upstream.HTTP > 0 {
				status = upstream.HTTP
			}
		}
		utils.SendJSONError(w, upstream.Error(), status)
		return
	}
	switch {
	case errors.Is(err, services.ErrParsingFailed),
		errors.Is(err, services.ErrInvalidTimezone),
		errors.Is(err, services.ErrSymbolUnknown):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
