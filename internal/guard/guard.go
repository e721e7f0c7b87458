// Package guard gates protected views on the session state: authenticated
// requests pass through, anonymous ones are redirected to the login entry
// point with a single "please log in" notification per episode.
package guard

import (
	"net/http"
	"sync"

	"medicore-client/internal/notify"
	"medicore-client/internal/session"
)

const noticeID = "guard-login-required"

type Guard struct {
	store    *session.Store
	notifier notify.Notifier

	mu       sync.Mutex
	notified bool
}

func New(store *session.Store, notifier notify.Notifier) *Guard {
	return &Guard{store: store, notifier: notifier}
}

// Allow reports whether protected content may render. While the session
// stays unauthenticated, only the first call notifies; authenticating
// re-arms the notification for the next anonymous episode.
func (g *Guard) Allow() bool {
	st := g.store.Snapshot()

	g.mu.Lock()
	defer g.mu.Unlock()

	if st.IsAuthenticated {
		if g.notified {
			g.notified = false
			g.notifier.Dismiss(noticeID)
		}
		return true
	}
	if !g.notified {
		g.notified = true
		g.notifier.Notify(notify.Info, noticeID, "Please log in first to access this page")
	}
	return false
}

// Middleware is the router-facing form of Allow: anonymous requests are
// redirected to loginPath instead of reaching the protected handler.
func (g *Guard) Middleware(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Allow() {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
