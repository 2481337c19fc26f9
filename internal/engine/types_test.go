package engine

import (
	"errors"
	"testing"
	"time"

	sipErrors "github.com/Iron-Ham/sipchat/internal/errors"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		in      string
		want    URI
		wantErr bool
	}{
		{in: "bob@example.com", want: URI{User: "bob", Host: "example.com"}},
		{in: "sip:bob@example.com:5070", want: URI{User: "bob", Host: "example.com", Port: 5070}},
		{in: "bob", want: URI{User: "bob", Host: "local.test"}},
		{in: " carol@10.0.0.1 ", want: URI{User: "carol", Host: "10.0.0.1"}},
		{in: "", wantErr: true},
		{in: "@example.com", wantErr: true},
		{in: "bob@example.com:abc", wantErr: true},
		{in: "bob@example.com:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseURI(tt.in, "local.test")
			if tt.wantErr {
				if !errors.Is(err, sipErrors.ErrInvalidInput) {
					t.Fatalf("ParseURI(%q) error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseURI(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestURI_Formatting(t *testing.T) {
	u := URI{User: "bob", Host: "example.com", Port: 5070}
	if got := u.String(); got != "bob@example.com:5070" {
		t.Errorf("String() = %q", got)
	}
	if got := u.Address(); got != "example.com:5070" {
		t.Errorf("Address() = %q", got)
	}
	if got := (URI{User: "bob", Host: "h"}).Address(); got != "h:5060" {
		t.Errorf("Address() default port = %q", got)
	}
	if got := u.Format(); got != "bob@example.com" {
		t.Errorf("Format() = %q", got)
	}
	u.Display = "Bob"
	if got := u.Format(); got != "Bob (bob@example.com)" {
		t.Errorf("Format() with display = %q", got)
	}
}

func TestStreamLabels(t *testing.T) {
	if got := StreamLabels([]StreamKind{StreamAudio, StreamChat}); got != "Audio/Chat" {
		t.Errorf("StreamLabels() = %q", got)
	}
	if got := StreamLabels(nil); got != "" {
		t.Errorf("StreamLabels(nil) = %q", got)
	}
}

func TestSessionInfo(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := SessionInfo{
		Streams:   []StreamKind{StreamChat},
		StartTime: start,
		StopTime:  start.Add(90 * time.Second),
	}
	if s.HasStream(StreamAudio) || !s.HasStream(StreamChat) {
		t.Error("HasStream misreports streams")
	}
	if s.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v", s.Duration())
	}
	if (SessionInfo{}).Duration() != 0 {
		t.Error("Duration() of a session that never started should be 0")
	}
	if !StateFailed.Terminal() || StateConfirmed.Terminal() {
		t.Error("Terminal() misclassifies states")
	}
}
