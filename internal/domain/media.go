package domain

import (
	"encoding/json"
	"fmt"
)

// Success payload statuses.
const (
	MediaTunnel          = "tunnel"
	MediaRedirect        = "redirect"
	MediaPicker          = "picker"
	MediaLocalProcessing = "local-processing"
)

// Media is the part of a success payload this service looks at.
// The caller always receives the full upstream body, not this struct.
type Media struct {
	Status   string       `json:"status"`
	URL      string       `json:"url,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Picker   []PickerItem `json:"picker,omitempty"`
}

// PickerItem is one candidate when the upstream lets the caller choose.
type PickerItem struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Thumb string `json:"thumb,omitempty"`
}

// ParseMedia decodes a success body.
func ParseMedia(body json.RawMessage) (Media, error) {
	var m Media
	if err := json.Unmarshal(body, &m); err != nil {
		return Media{}, fmt.Errorf("failed to parse media payload: %w", err)
	}
	return m, nil
}

// PrimaryURL is the direct URL, or the first picker candidate.
func (m Media) PrimaryURL() string {
	if m.URL != "" {
		return m.URL
	}
	for _, item := range m.Picker {
		if item.URL != "" {
			return item.URL
		}
	}
	return ""
}
