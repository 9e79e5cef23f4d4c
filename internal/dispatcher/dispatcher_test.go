package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// fakeInstance is an httptest server standing in for one upstream.
type fakeInstance struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func (f *fakeInstance) instance(t *testing.T) domain.Instance {
	t.Helper()
	inst, err := domain.NewInstance(f.srv.URL, "")
	if err != nil {
		t.Fatalf("NewInstance(%q) error = %v", f.srv.URL, err)
	}
	return inst
}

func newFake(t *testing.T, h http.HandlerFunc) *fakeInstance {
	t.Helper()
	f := &fakeInstance{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newDispatcher(t *testing.T, opts Options, fakes ...*fakeInstance) *Dispatcher {
	t.Helper()
	instances := make([]domain.Instance, 0, len(fakes))
	for _, f := range fakes {
		instances = append(instances, f.instance(t))
	}
	d, err := New(instances, opts, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func request(url string) domain.DownloadRequest {
	return domain.DownloadRequest{URL: url}
}

const (
	tunnelBody   = `{"status":"tunnel","url":"https://media.example/abc","filename":"video.mp4"}`
	terminalBody = `{"status":"error","error":{"code":"error.api.content.video.unavailable"}}`
)

func TestNewRejectsEmptyList(t *testing.T) {
	if _, err := New(nil, Options{}, logger.Nop()); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
	if _, err := New([]domain.Instance{{URL: "https://a.example"}}, Options{AttemptTimeout: -time.Second}, logger.Nop()); err == nil {
		t.Fatal("New() with negative timeout error = nil, want error")
	}
}

func TestNewCopiesInstances(t *testing.T) {
	list := []domain.Instance{{URL: "https://a.example"}, {URL: "https://b.example"}}
	d, err := New(list, Options{}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	list[0].URL = "https://mutated.example"

	got := d.Instances()
	if got[0].URL != "https://a.example" {
		t.Errorf("Instances()[0] = %q, want caller mutation to be invisible", got[0].URL)
	}
	if d.AttemptTimeout() != DefaultAttemptTimeout {
		t.Errorf("AttemptTimeout() = %v, want %v", d.AttemptTimeout(), DefaultAttemptTimeout)
	}
}

func TestDispatchRejectsBadInputWithoutContactingInstances(t *testing.T) {
	fake := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, fake)

	tests := []struct {
		name string
		req  domain.DownloadRequest
		want error
	}{
		{"missing url", request(""), domain.ErrMissingURL},
		{"blank url", request("   "), domain.ErrMissingURL},
		{"relative url", request("watch?v=1"), domain.ErrInvalidURL},
		{"unsupported scheme", request("ftp://example.com/x"), domain.ErrInvalidURL},
		{"unencodable option", domain.DownloadRequest{
			URL:     videoURL,
			Options: map[string]json.RawMessage{"audioFormat": json.RawMessage(`{broken`)},
		}, domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Dispatch(context.Background(), tt.req)
			if res.Kind != domain.ResultRejected {
				t.Fatalf("Kind = %v, want rejected", res.Kind)
			}
			if !errors.Is(res.Reason, tt.want) {
				t.Errorf("Reason = %v, want %v", res.Reason, tt.want)
			}
			if res.HTTPStatus() != http.StatusBadRequest {
				t.Errorf("HTTPStatus() = %d, want 400", res.HTTPStatus())
			}
			if len(res.Attempts) != 0 {
				t.Errorf("Attempts = %d, want 0", len(res.Attempts))
			}
		})
	}

	if n := fake.hits.Load(); n != 0 {
		t.Errorf("instance contacted %d times, want 0", n)
	}
}

func TestDispatchFirstInstanceSucceeds(t *testing.T) {
	a := newFake(t, reply(http.StatusOK, tunnelBody))
	b := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, a, b)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultSuccess {
		t.Fatalf("Kind = %v, want success", res.Kind)
	}
	if string(res.Body) != tunnelBody {
		t.Errorf("Body = %s, want upstream body verbatim", res.Body)
	}
	if res.Instance != a.instance(t).URL {
		t.Errorf("Instance = %q, want first instance", res.Instance)
	}
	if res.ID == "" {
		t.Error("ID is empty, want a dispatch id")
	}
	if a.hits.Load() != 1 || b.hits.Load() != 0 {
		t.Errorf("hits = (%d, %d), want (1, 0)", a.hits.Load(), b.hits.Load())
	}
}

func TestDispatchFailsOverToNextInstance(t *testing.T) {
	a := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})
	b := newFake(t, reply(http.StatusOK, tunnelBody))
	c := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, a, b, c)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultSuccess {
		t.Fatalf("Kind = %v, want success", res.Kind)
	}
	if res.Instance != b.instance(t).URL {
		t.Errorf("Instance = %q, want second instance", res.Instance)
	}
	if got := [3]int32{a.hits.Load(), b.hits.Load(), c.hits.Load()}; got != [3]int32{1, 1, 0} {
		t.Errorf("hits = %v, want [1 1 0]", got)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("Attempts = %d, want 2", len(res.Attempts))
	}
	if res.Attempts[0].Kind != domain.OutcomeRetryable || res.Attempts[1].Kind != domain.OutcomeSuccess {
		t.Errorf("attempt kinds = %v, %v", res.Attempts[0].Kind, res.Attempts[1].Kind)
	}
}

func TestDispatchStructuredErrorIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"with 400", http.StatusBadRequest},
		{"with 200", http.StatusOK},
		{"with 500", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFake(t, reply(tt.status, terminalBody))
			b := newFake(t, reply(http.StatusOK, tunnelBody))
			d := newDispatcher(t, Options{}, a, b)

			res := d.Dispatch(context.Background(), request(videoURL))

			if res.Kind != domain.ResultTerminal {
				t.Fatalf("Kind = %v, want terminal", res.Kind)
			}
			if string(res.Body) != terminalBody {
				t.Errorf("Body = %s, want upstream error verbatim", res.Body)
			}
			if res.HTTPStatus() != http.StatusOK {
				t.Errorf("HTTPStatus() = %d, want 200", res.HTTPStatus())
			}
			if res.Code() != domain.CodeVideoUnavailable {
				t.Errorf("Code() = %q, want %q", res.Code(), domain.CodeVideoUnavailable)
			}
			if b.hits.Load() != 0 {
				t.Errorf("second instance contacted %d times, want 0", b.hits.Load())
			}
		})
	}
}

func TestDispatchExhaustionKeepsLastFailureOnly(t *testing.T) {
	a := newFake(t, reply(http.StatusServiceUnavailable, `{"reason":"maintenance"}`))
	b := newFake(t, reply(http.StatusTooManyRequests, `{"reason":"slow down"}`))
	d := newDispatcher(t, Options{}, a, b)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultExhausted {
		t.Fatalf("Kind = %v, want exhausted", res.Kind)
	}
	if res.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("HTTPStatus() = %d, want 502", res.HTTPStatus())
	}
	if res.LastFailure == nil {
		t.Fatal("LastFailure = nil")
	}
	if res.LastFailure.Instance != b.instance(t).URL {
		t.Errorf("LastFailure.Instance = %q, want last instance", res.LastFailure.Instance)
	}
	if res.LastFailure.Status != http.StatusTooManyRequests {
		t.Errorf("LastFailure.Status = %d, want 429", res.LastFailure.Status)
	}
	if string(res.LastFailure.Data) != `{"reason":"slow down"}` {
		t.Errorf("LastFailure.Data = %s", res.LastFailure.Data)
	}

	payload, err := res.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	var env struct {
		Status string `json:"status"`
		Error  struct {
			Code string `json:"code"`
		} `json:"error"`
		Details struct {
			Status   int             `json:"status"`
			Data     json.RawMessage `json:"data"`
			Instance string          `json:"instance"`
		} `json:"details"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("Unmarshal(payload) error = %v", err)
	}
	if env.Status != "error" || env.Error.Code != domain.CodeAllInstancesFailed {
		t.Errorf("envelope = %s", payload)
	}
	if env.Details.Status != http.StatusTooManyRequests {
		t.Errorf("details.status = %d, want 429", env.Details.Status)
	}
}

func TestDispatchUnparsableBodyIsRecordedAs500(t *testing.T) {
	a := newFake(t, reply(http.StatusOK, `not json`))
	d := newDispatcher(t, Options{}, a)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultExhausted {
		t.Fatalf("Kind = %v, want exhausted", res.Kind)
	}
	if res.LastFailure.Status != http.StatusInternalServerError {
		t.Errorf("LastFailure.Status = %d, want 500", res.LastFailure.Status)
	}
	if res.LastFailure.Message == "" {
		t.Error("LastFailure.Message is empty")
	}
	if len(res.LastFailure.Data) != 0 {
		t.Errorf("LastFailure.Data = %s, want empty", res.LastFailure.Data)
	}
}

func TestDispatchNonObjectSuccessIsReturned(t *testing.T) {
	const picker = `[{"type":"video","url":"https://cdn.example/v.mp4"}]`
	a := newFake(t, reply(http.StatusOK, picker))
	b := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, a, b)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultSuccess || res.Instance != a.instance(t).URL {
		t.Fatalf("result = %v from %q, want success from first instance", res.Kind, res.Instance)
	}
	if string(res.Body) != picker {
		t.Errorf("Body = %s, want %s", res.Body, picker)
	}
	if b.hits.Load() != 0 {
		t.Errorf("second instance contacted %d times, want 0", b.hits.Load())
	}
}

func TestDispatchNonObjectErrorKeepsData(t *testing.T) {
	a := newFake(t, reply(http.StatusBadRequest, `[1,2]`))
	d := newDispatcher(t, Options{}, a)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultExhausted {
		t.Fatalf("Kind = %v, want exhausted", res.Kind)
	}
	f := res.LastFailure
	if f.Status != http.StatusBadRequest || string(f.Data) != `[1,2]` || f.Message != "" {
		t.Errorf("LastFailure = {%d %s %q}, want {400 [1,2] \"\"}", f.Status, f.Data, f.Message)
	}
}

func TestDispatchZeroErrorFieldIsRetryable(t *testing.T) {
	a := newFake(t, reply(http.StatusBadRequest, `{"status":"error","error":0.0}`))
	b := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, a, b)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultSuccess || res.Instance != b.instance(t).URL {
		t.Fatalf("result = %v from %q, want success from second instance", res.Kind, res.Instance)
	}
}

func TestDispatchUnreachableInstanceIsRetryable(t *testing.T) {
	dead := newFake(t, reply(http.StatusOK, tunnelBody))
	deadInstance := dead.instance(t)
	dead.srv.Close()

	alive := newFake(t, reply(http.StatusOK, tunnelBody))
	d, err := New([]domain.Instance{deadInstance, alive.instance(t)}, Options{}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultSuccess || res.Instance != alive.instance(t).URL {
		t.Fatalf("result = %v from %q, want success from live instance", res.Kind, res.Instance)
	}
	if res.Attempts[0].Err == "" {
		t.Error("first attempt has no error text")
	}
}

func TestDispatchAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })
	fast := newFake(t, reply(http.StatusOK, tunnelBody))

	d := newDispatcher(t, Options{AttemptTimeout: 100 * time.Millisecond}, slow, fast)

	start := time.Now()
	res := d.Dispatch(context.Background(), request(videoURL))
	elapsed := time.Since(start)

	if res.Kind != domain.ResultSuccess || res.Instance != fast.instance(t).URL {
		t.Fatalf("result = %v from %q, want success from fast instance", res.Kind, res.Instance)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Dispatch took %v, want it bounded by the attempt timeout", elapsed)
	}
	if res.Attempts[0].Kind != domain.OutcomeRetryable {
		t.Errorf("slow attempt kind = %v, want retryable", res.Attempts[0].Kind)
	}
}

func TestDispatchOversizedBodyIsRetryable(t *testing.T) {
	big := `{"status":"tunnel","url":"https://media.example/` + strings.Repeat("a", 2048) + `"}`
	a := newFake(t, reply(http.StatusOK, big))
	d := newDispatcher(t, Options{MaxResponseBytes: 512}, a)

	res := d.Dispatch(context.Background(), request(videoURL))

	if res.Kind != domain.ResultExhausted {
		t.Fatalf("Kind = %v, want exhausted", res.Kind)
	}
	if !strings.Contains(res.LastFailure.Message, "exceeds") {
		t.Errorf("LastFailure.Message = %q, want size error", res.LastFailure.Message)
	}
}

func TestDispatchForwardsRequestVerbatim(t *testing.T) {
	var (
		mu      sync.Mutex
		got     map[string]any
		headers http.Header
		method  string
		path    string
	)
	a := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, headers = r.Method, r.URL.Path, r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		reply(http.StatusOK, tunnelBody)(w, r)
	})
	d := newDispatcher(t, Options{}, a)

	req := domain.DownloadRequest{
		URL: videoURL,
		Options: map[string]json.RawMessage{
			domain.OptionDownloadMode: json.RawMessage(`"audio"`),
			domain.OptionAudioBitrate: json.RawMessage(`"320"`),
			"somethingNew":            json.RawMessage(`{"nested":true}`),
		},
	}
	res := d.Dispatch(context.Background(), req)
	if res.Kind != domain.ResultSuccess {
		t.Fatalf("Kind = %v, want success", res.Kind)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPost || path != "/" {
		t.Errorf("upstream saw %s %s, want POST /", method, path)
	}
	if headers.Get("Accept") != "application/json" || headers.Get("Content-Type") != "application/json" {
		t.Errorf("headers = %v", headers)
	}
	if got["url"] != videoURL {
		t.Errorf("url = %v, want %q", got["url"], videoURL)
	}
	if got["downloadMode"] != "audio" || got["audioBitrate"] != "320" {
		t.Errorf("options not forwarded: %v", got)
	}
	nested, ok := got["somethingNew"].(map[string]any)
	if !ok || nested["nested"] != true {
		t.Errorf("unknown option not preserved: %v", got["somethingNew"])
	}
}

func TestDispatchWalksInstancesInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string, status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			reply(status, `{}`)(w, r)
		}
	}
	a := newFake(t, record("a", http.StatusInternalServerError))
	b := newFake(t, record("b", http.StatusInternalServerError))
	c := newFake(t, record("c", http.StatusInternalServerError))
	d := newDispatcher(t, Options{}, a, b, c)

	for i := 0; i < 3; i++ {
		_ = d.Dispatch(context.Background(), request(videoURL))
	}

	want := "a,b,c,a,b,c,a,b,c"
	mu.Lock()
	defer mu.Unlock()
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestDispatchStopsWhenCallerCancels(t *testing.T) {
	a := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Dispatch(ctx, request(videoURL))

	if res.Kind != domain.ResultExhausted {
		t.Fatalf("Kind = %v, want exhausted", res.Kind)
	}
	if a.hits.Load() != 0 {
		t.Errorf("instance contacted %d times, want 0", a.hits.Load())
	}
	if res.LastFailure == nil || !strings.Contains(res.LastFailure.Message, "canceled") {
		t.Fatalf("LastFailure = %+v, want cancellation recorded", res.LastFailure)
	}
	if res.LastFailure.Instance != "" {
		t.Errorf("LastFailure.Instance = %q, want none since nothing was contacted", res.LastFailure.Instance)
	}
}

func TestDispatchCancelKeepsFailureOfContactedInstance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		reply(http.StatusServiceUnavailable, `{"message":"overloaded"}`)(w, r)
	})
	b := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, a, b)

	res := d.Dispatch(ctx, request(videoURL))

	if res.Kind != domain.ResultExhausted {
		t.Fatalf("Kind = %v, want exhausted", res.Kind)
	}
	if b.hits.Load() != 0 {
		t.Errorf("second instance contacted %d times, want 0", b.hits.Load())
	}
	if res.LastFailure == nil || res.LastFailure.Instance != a.instance(t).URL {
		t.Errorf("LastFailure = %+v, want the failure of %s", res.LastFailure, a.instance(t).URL)
	}
}

func TestDispatchIsSafeForConcurrentUse(t *testing.T) {
	a := newFake(t, reply(http.StatusInternalServerError, `{}`))
	b := newFake(t, reply(http.StatusOK, tunnelBody))
	d := newDispatcher(t, Options{}, a, b)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := d.Dispatch(context.Background(), request(videoURL))
			if res.Kind != domain.ResultSuccess {
				errs <- res.Kind.String()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for kind := range errs {
		t.Errorf("concurrent dispatch returned %s, want success", kind)
	}
	if a.hits.Load() != callers || b.hits.Load() != callers {
		t.Errorf("hits = (%d, %d), want (%d, %d)", a.hits.Load(), b.hits.Load(), callers, callers)
	}
}

func TestProbeAll(t *testing.T) {
	a := newFake(t, reply(http.StatusOK, `{"cobalt":{"version":"10.9.4","url":"https://a.example/"}}`))
	dead := newFake(t, reply(http.StatusOK, `{}`))
	deadInstance := dead.instance(t)
	dead.srv.Close()

	d, err := New([]domain.Instance{a.instance(t), deadInstance}, Options{}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results := d.ProbeAll(context.Background(), 2*time.Second)
	if len(results) != 2 {
		t.Fatalf("ProbeAll() = %d results, want 2", len(results))
	}
	if !results[0].Reachable || results[0].Version != "10.9.4" || results[0].StatusCode != http.StatusOK {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Reachable || results[1].Error == "" {
		t.Errorf("results[1] = %+v, want unreachable with error", results[1])
	}
}
