// Package transport binds the orchestrator to its outer surfaces. The
// Invoker is the shared entry point: the HTTP server and the one-shot
// function handler both call it, so caching and response shaping behave
// identically on either path.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/internal/cache"
	"github.com/pagebound/scrape/internal/engine"
	"github.com/pagebound/scrape/internal/reqctx"
	"github.com/pagebound/scrape/pkg/models"
)

// Invoker runs one scrape request end to end, consulting the result
// cache when the request tolerates stale content.
type Invoker struct {
	orch  *engine.Orchestrator
	cache cache.Cache
}

// NewInvoker creates an invoker. cc may be nil to disable caching.
func NewInvoker(orch *engine.Orchestrator, cc cache.Cache) *Invoker {
	return &Invoker{orch: orch, cache: cc}
}

// Invoke executes the request and shapes the transport envelope. It
// never returns an error: failures are carried inside the response.
func (inv *Invoker) Invoke(ctx context.Context, req *models.ScrapeRequest) *models.ScrapeResponse {
	start := time.Now()
	ctx = reqctx.WithRequestContext(ctx)
	requestID := reqctx.GetRequestContext(ctx).RequestID

	if inv.cache != nil && req != nil && req.MaxAge > 0 {
		key := cache.Key(req)
		if cached, hit := inv.cache.Get(key, req.MaxAge); hit {
			return &models.ScrapeResponse{
				Success:     true,
				Result:      cached,
				CacheStatus: "hit",
				RequestID:   requestID,
				ElapsedMs:   time.Since(start).Milliseconds(),
			}
		}
	}

	result, err := inv.orch.Scrape(ctx, req)
	if err != nil {
		log.Debug().Str("request_id", requestID).Err(err).Msg("Invocation failed")
		return &models.ScrapeResponse{
			Success:   false,
			Error:     toDetail(err),
			RequestID: requestID,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
	}

	resp := &models.ScrapeResponse{
		Success:   true,
		Result:    result,
		RequestID: requestID,
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	if inv.cache != nil && req.MaxAge > 0 {
		inv.cache.Set(cache.Key(req), result)
		resp.CacheStatus = "miss"
	}
	return resp
}

func toDetail(err error) *models.ErrorDetail {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.Detail()
	}
	return &models.ErrorDetail{
		Code:    models.ErrCodeNavigation,
		Message: err.Error(),
	}
}

// StatusOf translates a failed response's error code to an HTTP status.
func StatusOf(resp *models.ScrapeResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Code {
	case models.ErrCodeInvalidRequest, models.ErrCodeInvalidRule:
		return http.StatusBadRequest // 400
	case models.ErrCodeTimeout, models.ErrCodeStepTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeDriverUnavailable:
		return http.StatusBadGateway // 502
	case models.ErrCodePoolExhausted:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeCancelled:
		return 499 // client closed request
	case models.ErrCodeMissingField, models.ErrCodeRetriesExhausted:
		return http.StatusUnprocessableEntity // 422
	default:
		return http.StatusInternalServerError // 500
	}
}
