// Package registration tracks which accounts currently hold a registration,
// so shutdown can wait for them to unregister.
package registration

import (
	"slices"

	"github.com/Iron-Ham/sipchat/internal/event"
)

// Tracker is updated from registration events on the coordinator goroutine.
// It is not safe for concurrent use.
type Tracker struct {
	accounts map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{accounts: make(map[string]struct{})}
}

// Observe applies a registration event and reports whether it was one.
// Success adds the account; failure and end remove it.
func (t *Tracker) Observe(ev event.Event) bool {
	switch ev.Kind {
	case event.KindRegistrationDidSucceed:
		t.accounts[ev.Account] = struct{}{}
	case event.KindRegistrationDidFail, event.KindRegistrationDidEnd:
		delete(t.accounts, ev.Account)
	default:
		return false
	}
	return true
}

// Registered reports whether account is registered.
func (t *Tracker) Registered(account string) bool {
	_, ok := t.accounts[account]
	return ok
}

// Len returns the number of registered accounts.
func (t *Tracker) Len() int { return len(t.accounts) }

// Empty reports whether no account is registered.
func (t *Tracker) Empty() bool { return len(t.accounts) == 0 }

// Accounts returns the registered accounts, sorted.
func (t *Tracker) Accounts() []string {
	out := make([]string, 0, len(t.accounts))
	for a := range t.accounts {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}
