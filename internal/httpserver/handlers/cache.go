package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
)

const cacheAdminTimeout = 10 * time.Second

// FlushCache drops every cached download result.
func FlushCache(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.CacheAdmin == nil {
			writeError(w, http.StatusConflict, domain.CodeCacheDisabled)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cacheAdminTimeout)
		defer cancel()

		removed, err := d.CacheAdmin.FlushCache(ctx)
		if err != nil {
			d.Logger.Error("failed to flush result cache",
				logger.Int64("removed", removed),
				logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, domain.CodeCacheUnavailable)
			return
		}

		d.Logger.Info("result cache flushed", logger.Int64("removed", removed))
		writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
	}
}

// InvalidateCache drops the cached result of the download request in the body.
// The body has the same shape as a /api/download request.
func InvalidateCache(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.CacheAdmin == nil {
			writeError(w, http.StatusConflict, domain.CodeCacheDisabled)
			return
		}

		req, err := decodeDownloadRequest(w, r, d.MaxRequestBytes)
		if err == nil {
			err = req.Validate()
		}
		if err != nil {
			res := domain.Result{Kind: domain.ResultRejected, Reason: err}
			writeError(w, res.HTTPStatus(), res.Code())
			return
		}

		canonical, err := json.Marshal(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeRequestInvalid)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cacheOpTimeout)
		defer cancel()

		removed, err := d.CacheAdmin.InvalidateResult(ctx, canonical)
		if err != nil {
			d.Logger.Error("failed to invalidate cached result",
				logger.String("url", req.URL),
				logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, domain.CodeCacheUnavailable)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
	}
}
