package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMissingURL is returned when the request carries no source URL.
	ErrMissingURL = errors.New("missing url parameter")
	// ErrInvalidURL is returned when the source URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url parameter")
	// ErrInvalidRequest is returned when the request itself cannot be encoded or decoded.
	ErrInvalidRequest = errors.New("invalid download request")
)

// Well-known extraction options understood by cobalt-compatible instances.
// Options are forwarded verbatim, so this list is informative, not exhaustive.
const (
	OptionDownloadMode   = "downloadMode"          // auto | audio | mute
	OptionVideoQuality   = "videoQuality"          // 144 .. 4320 | max
	OptionVideoCodec     = "youtubeVideoCodec"     // h264 | av1 | vp9
	OptionVideoContainer = "youtubeVideoContainer" // auto | mp4 | webm | mkv
	OptionAudioFormat    = "audioFormat"           // best | mp3 | ogg | wav | opus
	OptionAudioBitrate   = "audioBitrate"          // 320 | 256 | 128 | 96 | 64 | 8
)

// DownloadRequest is what a caller submits: a source URL plus named extraction
// options. Unknown options survive a decode/encode round trip untouched.
type DownloadRequest struct {
	URL     string
	Options map[string]json.RawMessage
}

// UnmarshalJSON decodes a JSON object, lifting "url" out of the option set.
func (r *DownloadRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode download request: %w", err)
	}
	if raw == nil {
		return errors.New("download request must be a JSON object")
	}

	r.URL = ""
	if v, ok := raw["url"]; ok {
		if err := json.Unmarshal(v, &r.URL); err != nil {
			return fmt.Errorf("url must be a string: %w", err)
		}
		delete(raw, "url")
	}
	r.URL = strings.TrimSpace(r.URL)
	r.Options = raw
	return nil
}

// MarshalJSON encodes the request as the flat object instances expect.
// Keys come out sorted, so equal requests encode to equal bytes.
func (r DownloadRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Options)+1)
	for k, v := range r.Options {
		out[k] = v
	}
	u, err := json.Marshal(r.URL)
	if err != nil {
		return nil, err
	}
	out["url"] = u
	return json.Marshal(out)
}

// Option returns the string value of a named option, or "" when absent or not a string.
func (r DownloadRequest) Option(name string) string {
	v, ok := r.Options[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// Validate checks the only precondition the dispatcher imposes: an absolute
// http(s) source URL.
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}
