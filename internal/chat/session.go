// Package chat holds the coordinator's view of a session: its display label,
// remote party, transcript and hold intent.
package chat

import (
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/history"
)

// NoStreamsLabel is shown for a session that carries no streams.
const NoStreamsLabel = "Session with no streams"

// Session is owned by the coordinator goroutine and is not safe for
// concurrent use.
type Session struct {
	info        engine.SessionInfo
	label       string
	remoteParty string
	holdIntent  bool
	recording   string
	ending      bool
	transcript  *history.Transcript
}

// New creates a Session from the engine's snapshot.
func New(info engine.SessionInfo) *Session {
	s := &Session{
		info:        info,
		remoteParty: info.Remote.Format(),
	}
	s.SetStreams(info.Streams)
	return s
}

// ID returns the engine session id.
func (s *Session) ID() engine.SessionID { return s.info.ID }

// Info returns the latest snapshot seen by the coordinator.
func (s *Session) Info() engine.SessionInfo { return s.info }

// Update replaces the snapshot. The label follows the snapshot's streams.
func (s *Session) Update(info engine.SessionInfo) {
	s.info = info
	s.SetStreams(info.Streams)
}

// SetStreams recomputes the label from a stream set, e.g. "Audio/Chat".
func (s *Session) SetStreams(streams []engine.StreamKind) {
	s.info.Streams = slices.Clone(streams)
	s.label = engine.StreamLabels(streams)
	if s.label == "" {
		s.label = NoStreamsLabel
	}
}

// Label returns the stream label.
func (s *Session) Label() string { return s.label }

// RemoteParty returns the formatted remote address.
func (s *Session) RemoteParty() string { return s.remoteParty }

// HasAudio reports whether the latest snapshot carries audio.
func (s *Session) HasAudio() bool { return s.info.HasStream(engine.StreamAudio) }

// FormatPrompt renders "<label> to <remote>: ", with " [STATE]" before the
// colon unless the session is confirmed.
func (s *Session) FormatPrompt() string {
	result := fmt.Sprintf("%s to %s", s.label, s.remoteParty)
	if s.info.State != engine.StateConfirmed {
		result += fmt.Sprintf(" [%s]", s.info.State)
	}
	return result + ": "
}

// HoldIntent reports whether the user last asked for hold.
func (s *Session) HoldIntent() bool { return s.holdIntent }

// SetHoldIntent records the user's last hold or unhold request.
func (s *Session) SetHoldIntent(hold bool) { s.holdIntent = hold }

// Ending reports whether the user has already asked to end the session.
func (s *Session) Ending() bool { return s.ending }

// MarkEnding records that End was requested.
func (s *Session) MarkEnding() { s.ending = true }

// Recording returns the active recording file name, or "".
func (s *Session) Recording() string { return s.recording }

// SetRecording records the active recording file name; "" means stopped.
func (s *Session) SetRecording(name string) { s.recording = name }

// AttachTranscript sets the transcript if none is attached yet.
func (s *Session) AttachTranscript(t *history.Transcript) {
	if s.transcript == nil {
		s.transcript = t
	}
}

// HasTranscript reports whether a transcript is attached.
func (s *Session) HasTranscript() bool { return s.transcript != nil }

// Log appends a line to the transcript, if any.
func (s *Session) Log(line string) error {
	return s.transcript.WriteLine(line)
}

// Close closes the transcript. It is safe to call more than once.
func (s *Session) Close() error {
	t := s.transcript
	s.transcript = nil
	return t.Close()
}

// FormatTime renders t as HH:MM:SS, with the date appended when t is not
// on the same day as now.
func FormatTime(t, now time.Time) string {
	t = t.Local()
	now = now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04:05")
	}
	return t.Format("15:04:05 01/02/06")
}

// FormatMessage renders one chat line: "<time> <party>: <text>".
func FormatMessage(sent, now time.Time, party, text string) string {
	if sent.IsZero() {
		return fmt.Sprintf("%s: %s", party, text)
	}
	return fmt.Sprintf("%s %s: %s", FormatTime(sent, now), party, text)
}
