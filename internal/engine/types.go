package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Iron-Ham/sipchat/internal/errors"
)

// DefaultPort is the port assumed when an address does not carry one. It is
// also left out when formatting account prompts.
const DefaultPort = 5060

// SessionID identifies a session inside one engine.
type SessionID string

// State is the lifecycle state of a session as reported by the engine.
type State string

// Session states.
const (
	StateIncoming         State = "INCOMING"
	StateProposingStreams State = "PROPOSING_STREAMS"
	StateConnecting       State = "CONNECTING"
	StateConfirmed        State = "CONFIRMED"
	StateEnding           State = "ENDING"
	StateEnded            State = "ENDED"
	StateFailed           State = "FAILED"
)

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// StreamKind is a media or messaging channel inside a session.
type StreamKind string

// Stream kinds.
const (
	StreamAudio StreamKind = "audio"
	StreamChat  StreamKind = "chat"
)

// StreamKinds lists every stream kind the engine can negotiate, in the order
// used for completion and display.
var StreamKinds = []StreamKind{StreamAudio, StreamChat}

// Label returns the capitalized display name ("Audio", "Chat").
func (k StreamKind) Label() string {
	if k == "" {
		return ""
	}
	r := []rune(string(k))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// StreamLabels joins the display names of kinds with "/".
func StreamLabels(kinds []StreamKind) string {
	labels := make([]string, 0, len(kinds))
	for _, k := range kinds {
		labels = append(labels, k.Label())
	}
	return strings.Join(labels, "/")
}

// HasStream reports whether kinds contains k.
func HasStream(kinds []StreamKind, k StreamKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Originator says which side caused a transition.
type Originator string

// Originators.
const (
	OriginatorLocal  Originator = "local"
	OriginatorRemote Originator = "remote"
)

// URI is a user@host[:port] address with an optional display name.
type URI struct {
	User    string
	Host    string
	Port    int
	Display string
}

// String returns user@host, with :port appended when it is set.
func (u URI) String() string {
	s := u.User + "@" + u.Host
	if u.Port != 0 {
		s += ":" + strconv.Itoa(u.Port)
	}
	return s
}

// Address returns host:port, using DefaultPort when the port is unset.
func (u URI) Address() string {
	port := u.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", u.Host, port)
}

// Format renders the URI for people: "Display (user@host)" or "user@host".
func (u URI) Format() string {
	if u.Display != "" {
		return fmt.Sprintf("%s (%s@%s)", u.Display, u.User, u.Host)
	}
	return u.User + "@" + u.Host
}

// ParseURI parses "[sip:]user[@host[:port]]". A missing host is filled in
// with defaultDomain.
func ParseURI(s, defaultDomain string) (URI, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "sip:")
	raw = strings.TrimPrefix(raw, "sips:")
	if raw == "" {
		return URI{}, errors.Wrapf(errors.ErrInvalidInput, "empty address")
	}

	user, hostport, found := strings.Cut(raw, "@")
	if !found {
		user, hostport = raw, defaultDomain
	}
	if user == "" || hostport == "" {
		return URI{}, errors.Wrapf(errors.ErrInvalidInput, "cannot parse address %q", s)
	}

	uri := URI{User: user, Host: hostport}
	if host, portStr, ok := strings.Cut(hostport, ":"); ok {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return URI{}, errors.Wrapf(errors.ErrInvalidInput, "invalid port in address %q", s)
		}
		uri.Host = host
		uri.Port = port
	}
	return uri, nil
}

// SessionInfo is an immutable snapshot of a session, taken by the engine at
// the moment a notification is emitted. The coordinator only ever reads
// snapshots; it never touches engine-owned state.
type SessionInfo struct {
	ID              SessionID
	Local           URI
	Remote          URI
	State           State
	Streams         []StreamKind
	OnHold          bool
	Outgoing        bool
	StartTime       time.Time
	StopTime        time.Time
	RemoteUserAgent string
}

// HasStream reports whether the session carries a stream of kind k.
func (s SessionInfo) HasStream(k StreamKind) bool {
	return HasStream(s.Streams, k)
}

// Duration returns how long the session was established, or zero if it never
// started or has not stopped.
func (s SessionInfo) Duration() time.Duration {
	if s.StartTime.IsZero() || s.StopTime.IsZero() {
		return 0
	}
	return s.StopTime.Sub(s.StartTime)
}
