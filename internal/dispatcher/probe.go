package dispatcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/utils"
)

// ProbeResult is the live state of one instance as seen by GET /.
type ProbeResult struct {
	Instance   string        `json:"instance"`
	Reachable  bool          `json:"reachable"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
	Version    string        `json:"version,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// serverInfo is the subset of the instance info document we care about.
type serverInfo struct {
	Cobalt struct {
		Version string `json:"version"`
	} `json:"cobalt"`
}

// newProbeClient builds a short-lived client that never follows redirects
// and never reuses connections.
func newProbeClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 0,
			}).DialContext,
			TLSHandshakeTimeout: timeout,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			DisableKeepAlives: true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Probe checks a single instance. Any HTTP response counts as reachable.
func Probe(ctx context.Context, client *http.Client, inst domain.Instance) ProbeResult {
	res := ProbeResult{Instance: inst.URL}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.Endpoint(), http.NoBody)
	if err != nil {
		res.Error = fmt.Sprintf("failed to create request: %v", err)
		return res
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer utils.DrainAndClose(resp.Body)

	res.Reachable = true
	res.StatusCode = resp.StatusCode

	var info serverInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err == nil {
		res.Version = info.Cobalt.Version
	}
	return res
}

// ProbeAll checks every configured instance concurrently. Results keep the
// failover order.
func (d *Dispatcher) ProbeAll(ctx context.Context, timeout time.Duration) []ProbeResult {
	client := newProbeClient(timeout)
	out := make([]ProbeResult, len(d.instances))

	var wg sync.WaitGroup
	for i, inst := range d.instances {
		wg.Add(1)
		go func(i int, inst domain.Instance) {
			defer wg.Done()
			out[i] = Probe(ctx, client, inst)
		}(i, inst)
	}
	wg.Wait()

	return out
}
