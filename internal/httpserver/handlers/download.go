package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/mw"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
)

const cacheOpTimeout = 2 * time.Second

// Download resolves a media link through the failover dispatcher.
//
// Successful and terminal upstream answers are relayed verbatim with 200.
// Exhaustion is a 502 carrying the last upstream failure.
func Download(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST, OPTIONS")
			writeError(w, http.StatusMethodNotAllowed, domain.CodeMethodNotAllowed)
			return
		}

		req, err := decodeDownloadRequest(w, r, d.MaxRequestBytes)
		if err != nil {
			d.Logger.Debug("unreadable download request", logger.Error(err))
			res := domain.Result{Kind: domain.ResultRejected, Reason: err}
			d.Stats.RecordResult(res)
			writeError(w, res.HTTPStatus(), res.Code())
			return
		}

		var canonical []byte
		if d.CacheEnabled() && req.Validate() == nil {
			canonical, err = json.Marshal(req)
			if err == nil {
				if body, ok := lookupCache(r.Context(), d, canonical); ok {
					d.Stats.IncrementCacheHits()
					w.Header().Set("X-Cache", "HIT")
					writeRaw(w, http.StatusOK, body)
					return
				}
			}
		}

		res := d.Dispatcher.Dispatch(r.Context(), req)
		d.Stats.RecordResult(res)

		payload, err := res.Payload()
		if err != nil {
			d.Logger.Error("failed to encode download result",
				logger.String("dispatch_id", res.ID),
				logger.Error(err))
			writeError(w, http.StatusInternalServerError, domain.CodeInternal)
			return
		}

		if res.Kind == domain.ResultSuccess && canonical != nil {
			storeCache(r.Context(), d, canonical, res.Body, res.ID)
		}

		if res.ID != "" {
			w.Header().Set(mw.DispatchIDHeader, res.ID)
		}
		if d.CacheEnabled() {
			w.Header().Set("X-Cache", "MISS")
		}
		writeRaw(w, res.HTTPStatus(), payload)
	}
}

// decodeDownloadRequest reads a size-capped JSON body. Any failure is
// reported as domain.ErrInvalidRequest.
func decodeDownloadRequest(w http.ResponseWriter, r *http.Request, limit int64) (domain.DownloadRequest, error) {
	var req domain.DownloadRequest

	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidRequest, tooLarge.Limit)
		}
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return req, nil
}

func lookupCache(ctx context.Context, d deps.Deps, canonical []byte) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	body, err := d.Cache.GetCachedResult(ctx, canonical)
	if err != nil {
		d.Logger.Warn("result cache lookup failed", logger.Error(err))
		return nil, false
	}
	return body, body != nil
}

// storeCache is best effort. It outlives a caller that already went away.
func storeCache(ctx context.Context, d deps.Deps, canonical, body []byte, dispatchID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	if err := d.Cache.CacheResult(ctx, canonical, body, d.CacheTTL); err != nil {
		d.Logger.Warn("failed to cache download result",
			logger.String("dispatch_id", dispatchID),
			logger.Error(err))
	}
}
