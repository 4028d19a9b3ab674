// ABOUTME: Message classification: session-start, owner, guest, aside, ignored
// ABOUTME: Pure decision over the event and current session store state

package conversation

import (
	"strings"

	"github.com/2389/threadloom/internal/platform"
	"github.com/2389/threadloom/internal/session"
)

// Kind is the role an incoming message plays for the orchestrator.
type Kind int

const (
	KindIgnore Kind = iota
	KindSessionStart
	KindOwnerTurn
	KindGuestTurn
	KindAside
)

// Markers recognized in message text.
const (
	publicMarker = "@public"
	asideMarker  = "@aside"
)

// classification is the outcome of classifying one event.
type classification struct {
	kind Kind
	// threadID is the effective thread: the event's thread, or the message's
	// own id when a top-level message anchors a new one.
	threadID string
	// public is set when a session-start carries the public flag.
	public bool
	// text is the message text with mention/visibility/aside markers stripped.
	text string
}

// classify runs the message state machine against the session store.
func (s *Service) classify(ev platform.Event) classification {
	if ev.ThreadID == "" {
		return s.classifyTopLevel(ev)
	}

	th, ok := s.store.Get(ev.ThreadID)
	if !ok {
		// Reply in a thread nobody started a session in.
		return classification{kind: KindIgnore}
	}

	text := strings.TrimSpace(ev.Text)
	if ev.AuthorID != th.Owner {
		if th.Visibility == session.VisibilityPublic {
			return classification{kind: KindGuestTurn, threadID: th.ID, text: text}
		}
		return classification{kind: KindIgnore}
	}

	if hasFoldedPrefix(text, asideMarker) {
		stripped := strings.TrimSpace(text[len(asideMarker):])
		return classification{kind: KindAside, threadID: th.ID, text: stripped}
	}
	return classification{kind: KindOwnerTurn, threadID: th.ID, text: text}
}

// classifyTopLevel decides whether a top-level message starts a session.
func (s *Service) classifyTopLevel(ev platform.Event) classification {
	text := strings.TrimSpace(ev.Text)

	mentioned := false
	public := false
	// The mention and visibility markers may appear in either order before
	// the directive and prose.
	for {
		switch {
		case s.opts.MentionToken != "" && strings.HasPrefix(text, s.opts.MentionToken):
			mentioned = true
			text = strings.TrimSpace(text[len(s.opts.MentionToken):])
		case hasFoldedPrefix(text, publicMarker):
			public = true
			text = strings.TrimSpace(text[len(publicMarker):])
		default:
			if !mentioned {
				return classification{kind: KindIgnore}
			}
			return classification{
				kind:     KindSessionStart,
				threadID: ev.MessageID,
				public:   public,
				text:     text,
			}
		}
	}
}

// hasFoldedPrefix reports whether text starts with the marker, ignoring case.
func hasFoldedPrefix(text, marker string) bool {
	return len(text) >= len(marker) && strings.EqualFold(text[:len(marker)], marker)
}
