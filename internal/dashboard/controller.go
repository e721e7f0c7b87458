// Package dashboard drives the appointment view: a transient local mirror
// of the signed-in user's appointments, refreshed whole from the backend.
// The mirror is never authoritative; any doubt means a full re-fetch.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"medicore-client/internal/api"
	"medicore-client/internal/bus"
	"medicore-client/internal/model"
	"medicore-client/internal/notify"
	"medicore-client/internal/session"
)

const (
	fetchNoticeID  = "appointments-fetch-failed"
	deleteNoticeID = "appointment-delete"
)

// ErrRefreshInFlight means a manual refresh was requested while one is
// already running; the caller should simply wait for it.
var ErrRefreshInFlight = errors.New("refresh already in flight")

type Controller struct {
	client   *api.Client
	store    *session.Store
	bus      *bus.Bus
	notifier notify.Notifier
	log      *zap.Logger

	mu           sync.Mutex
	userID       string
	appointments []model.Appointment
	refreshing   bool
	loaded       bool

	storeSub string
	busSub   string
}

func New(client *api.Client, store *session.Store, b *bus.Bus, notifier notify.Notifier, logger *zap.Logger) *Controller {
	return &Controller{
		client:   client,
		store:    store,
		bus:      b,
		notifier: notifier,
		log:      logger,
	}
}

// Bind wires the controller to its triggers: the owning user becoming
// known (session transitions) and appointmentCreated events. Both map to a
// full re-fetch; event payloads are never trusted.
func (c *Controller) Bind() {
	c.storeSub = c.store.Subscribe(func(st session.State) {
		if st.IsAuthenticated {
			c.List(context.Background(), st.User.ID)
			return
		}
		c.clear()
	})
	c.busSub = c.bus.Subscribe(bus.AppointmentCreated, func() {
		c.mu.Lock()
		uid := c.userID
		c.mu.Unlock()
		if uid == "" {
			return
		}
		if err := c.fetch(context.Background()); err != nil {
			c.log.Debug("event-driven refresh failed", zap.Error(err))
		}
	})

	if st := c.store.Snapshot(); st.IsAuthenticated {
		c.List(context.Background(), st.User.ID)
	}
}

func (c *Controller) Close() {
	if c.storeSub != "" {
		c.store.Unsubscribe(c.storeSub)
	}
	if c.busSub != "" {
		c.bus.Unsubscribe(bus.AppointmentCreated, c.busSub)
	}
}

// List targets the mirror at userID and re-fetches it whole.
func (c *Controller) List(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	return c.fetch(ctx)
}

// Refresh is the manual refresh button. At most one runs at a time;
// event-driven re-fetches are not gated here, they land behind it anyway.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return ErrRefreshInFlight
	}
	c.mu.Unlock()
	return c.fetch(ctx)
}

func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	uid := c.userID
	if uid == "" {
		c.mu.Unlock()
		return nil
	}
	c.refreshing = true
	c.mu.Unlock()

	c.notifier.Dismiss(fetchNoticeID)
	appts, err := c.client.Appointments(ctx, uid)

	c.mu.Lock()
	c.refreshing = false
	if err != nil {
		// mirror stays as-is on failure
		c.mu.Unlock()
		if !errors.Is(err, api.ErrUnauthorized) {
			c.notifier.Notify(notify.Error, fetchNoticeID, "Failed to fetch appointments")
		}
		return err
	}
	c.appointments = appts
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Remove deletes the appointment server-side first; the local entry goes
// only after the backend confirms, so a failed delete never looks deleted.
func (c *Controller) Remove(ctx context.Context, id string) error {
	c.notifier.Dismiss(deleteNoticeID)

	if err := c.client.DeleteAppointment(ctx, id); err != nil {
		if !errors.Is(err, api.ErrUnauthorized) {
			c.notifier.Notify(notify.Error, deleteNoticeID,
				api.UserMessage(err, "Failed to delete appointment"))
		}
		return err
	}

	c.mu.Lock()
	kept := c.appointments[:0:0]
	for _, a := range c.appointments {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	c.appointments = kept
	c.mu.Unlock()

	c.notifier.Notify(notify.Success, deleteNoticeID, "Appointment deleted successfully")
	return nil
}

// Appointments returns a copy of the current mirror in server order.
func (c *Controller) Appointments() []model.Appointment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Appointment, len(c.appointments))
	copy(out, c.appointments)
	return out
}

func (c *Controller) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Loaded reports whether at least one fetch has completed for the current
// user, distinguishing "no appointments" from "not fetched yet".
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Controller) clear() {
	c.mu.Lock()
	c.userID = ""
	c.appointments = nil
	c.loaded = false
	c.mu.Unlock()
}
