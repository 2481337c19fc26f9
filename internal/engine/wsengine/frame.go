package wsengine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/errors"
)

// frameType names a signalling or chat frame.
type frameType string

const (
	frameInvite         frameType = "invite"
	frameAccept         frameType = "accept"
	frameReject         frameType = "reject"
	frameCancel         frameType = "cancel"
	frameBye            frameType = "bye"
	framePropose        frameType = "propose"
	frameProposalAccept frameType = "proposal_accept"
	frameProposalReject frameType = "proposal_reject"
	frameRemoveStream   frameType = "remove_stream"
	frameHold           frameType = "hold"
	frameUnhold         frameType = "unhold"
	frameMessage        frameType = "message"
	frameDTMF           frameType = "dtmf"
)

// ProtocolVersion is sent with every invite. Peers with a different version
// are rejected with 488.
const ProtocolVersion = 1

// frame is the single JSON shape exchanged over a session's websocket.
// Fields not meaningful for a type are left empty.
type frame struct {
	Type      frameType           `json:"type"`
	Session   engine.SessionID    `json:"session,omitempty"`
	Version   int                 `json:"version,omitempty"`
	From      *engine.URI         `json:"from,omitempty"`
	To        *engine.URI         `json:"to,omitempty"`
	Streams   []engine.StreamKind `json:"streams,omitempty"`
	Code      int                 `json:"code,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Text      string              `json:"text,omitempty"`
	Digit     string              `json:"digit,omitempty"`
	UserAgent string              `json:"user_agent,omitempty"`
	Time      time.Time           `json:"time,omitzero"`
}

// category is the trace category a frame is printed under.
func (f frame) category() string {
	if f.Type == frameMessage {
		return TraceMSRP
	}
	return TraceSIP
}

func encodeFrame(f frame) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

func decodeFrame(payload []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if err := f.validate(); err != nil {
		return frame{}, err
	}
	return f, nil
}

func (f frame) validate() error {
	switch f.Type {
	case frameInvite:
		if f.Session == "" || f.From == nil || len(f.Streams) == 0 {
			return errors.Wrap(errors.ErrInvalidInput, "invite needs session, from and streams")
		}
	case frameAccept, framePropose, frameProposalAccept:
		if len(f.Streams) == 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "%s without streams", f.Type)
		}
	case frameRemoveStream:
		if len(f.Streams) != 1 {
			return errors.Wrap(errors.ErrInvalidInput, "remove_stream needs exactly one stream")
		}
	case frameDTMF:
		if len([]rune(f.Digit)) != 1 {
			return errors.Wrapf(errors.ErrInvalidInput, "dtmf digit %q", f.Digit)
		}
	case frameReject, frameCancel, frameBye, frameProposalReject,
		frameHold, frameUnhold, frameMessage:
	case "":
		return errors.Wrap(errors.ErrInvalidInput, "frame missing type")
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown frame type %q", f.Type)
	}
	for _, s := range f.Streams {
		if !engine.HasStream(engine.StreamKinds, s) {
			return errors.Wrapf(errors.ErrInvalidInput, "unknown stream %q", s)
		}
	}
	return nil
}
