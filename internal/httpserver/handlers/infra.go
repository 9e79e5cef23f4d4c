package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/dispatcher"
	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/deps"
)

const (
	defaultProbeTimeout = 5 * time.Second
	redisPingTimeout    = 2 * time.Second
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type instanceStatus struct {
	URL   string                  `json:"url"`
	Name  string                  `json:"name"`
	Stats domain.InstanceStats    `json:"stats"`
	Probe *dispatcher.ProbeResult `json:"probe,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Instances  []instanceStatus           `json:"instances"`
	Totals     domain.DispatchTotals      `json:"totals"`
	LastSync   string                     `json:"last_sync"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports instance statistics and supporting infrastructure state.
// With ?probe=1 every instance is also contacted live.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances := d.Dispatcher.Instances()

		var probes []dispatcher.ProbeResult
		if r.URL.Query().Get("probe") == "1" {
			timeout := d.ProbeTimeout
			if timeout <= 0 {
				timeout = defaultProbeTimeout
			}
			probes = d.Dispatcher.ProbeAll(r.Context(), timeout)
		}

		list := make([]instanceStatus, 0, len(instances))
		for i, inst := range instances {
			st, _ := d.Stats.Get(inst.URL)
			entry := instanceStatus{URL: inst.URL, Name: inst.Name, Stats: st}
			if probes != nil {
				entry.Probe = &probes[i]
			}
			list = append(list, entry)
		}

		lastSync := "never"
		if ts := d.Stats.GetLastSync(); !ts.IsZero() {
			lastSync = ts.Format("2006-01-02 15:04:05")
		}

		components := map[string]componentStatus{
			"dispatcher": checkDispatcher(len(instances), probes),
			"redis":      checkRedis(r.Context(), d),
			"cache":      checkCache(d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Instances:  list,
			Totals:     d.Stats.Totals(),
			LastSync:   lastSync,
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if c, ok := components["dispatcher"]; ok && !c.OK {
		return "critical"
	}
	if c, ok := components["redis"]; ok && !c.OK && c.Mode != "disabled" {
		return "degraded"
	}
	return "optimal"
}

func checkDispatcher(configured int, probes []dispatcher.ProbeResult) componentStatus {
	if configured == 0 {
		return componentStatus{OK: false, Error: "no instances configured"}
	}
	if probes == nil {
		return componentStatus{OK: true, Mode: "failover"}
	}
	for _, p := range probes {
		if p.Reachable {
			return componentStatus{OK: true, Mode: "failover"}
		}
	}
	return componentStatus{
		OK:     false,
		Mode:   "failover",
		Impact: "every download will fail",
		Error:  "no instance reachable",
	}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.Redis == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "stats-not-persisted",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := d.Redis.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "cache-and-stats-persistence-unavailable",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:   true,
		Mode: "optimal",
	}
}

func checkCache(d deps.Deps) componentStatus {
	if !d.CacheEnabled() {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	return componentStatus{OK: true, Mode: "ttl-" + d.CacheTTL.String()}
}
