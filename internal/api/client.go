// Package api is the single gateway to the MediCore backend: one configured
// HTTP client with a cookie jar for session credentials, wire-shape
// normalization, and the global 401 hook that forces de-authentication.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"medicore-client/internal/model"
)

type Client struct {
	base *url.URL
	hc   *http.Client
	log  *zap.Logger

	mu             sync.RWMutex
	onUnauthorized func()
}

func New(baseURL string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: u,
		hc:   &http.Client{Jar: jar},
		log:  logger,
	}, nil
}

// SetUnauthorizedHook installs the callback invoked on every 401 response,
// regardless of which endpoint produced it. The original error still reaches
// the caller; the hook is a side effect, not a replacement.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// do issues one JSON request. A non-nil out is filled from a 2xx body.
// Status mapping: 401 fires the hook and returns ErrUnauthorized, other 4xx
// become ValidationError with the backend's message, 5xx become ServerError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.unauthorized()
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode >= 500:
		c.log.Warn("backend failure",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return &ServerError{Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &ValidationError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func errorMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil || body.Message == "" {
		return "request failed"
	}
	return body.Message
}

// Me validates the current session cookie and returns the canonical user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var resp struct {
		User wireUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/user/patient/me", nil, &resp); err != nil {
		return nil, err
	}
	u := resp.User.toModel()
	return &u, nil
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Login exchanges credentials for a session cookie. The response may embed a
// user record; it is deliberately discarded — callers re-fetch Me for the
// canonical one.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if creds.Role == "" {
		creds.Role = "Patient"
	}
	return c.do(ctx, http.MethodPost, "/api/v1/user/login", creds, nil)
}

// Logout invalidates the server-side session. Best effort: the caller clears
// local state whether or not this succeeds.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/user/patient/logout", nil, nil)
}

type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	NIC       string `json:"nic"`
	DOB       string `json:"dob"`
	Gender    string `json:"gender"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

// Register creates a patient account. No auto-login: the backend does not
// set a session cookie here and neither do we assume one.
func (c *Client) Register(ctx context.Context, reg Registration) (string, error) {
	if reg.Role == "" {
		reg.Role = "Patient"
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/user/patient/register", reg, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		// 2xx with success=false still counts as a rejection
		msg := resp.Message
		if msg == "" {
			msg = "registration failed"
		}
		return "", &ValidationError{Status: http.StatusOK, Message: msg}
	}
	return resp.Message, nil
}

func (c *Client) Doctors(ctx context.Context) ([]model.Doctor, error) {
	var resp struct {
		Doctors []wireDoctor `json:"doctors"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/user/doctors", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Doctor, len(resp.Doctors))
	for i, d := range resp.Doctors {
		out[i] = d.toModel()
	}
	return out, nil
}

type Booking struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	NIC             string `json:"nic"`
	DOB             string `json:"dob"`
	Gender          string `json:"gender"`
	AppointmentDate string `json:"appointment_date"`
	Department      string `json:"department"`
	DoctorFirstName string `json:"doctor_firstName"`
	DoctorLastName  string `json:"doctor_lastName"`
	HasVisited      bool   `json:"hasVisited"`
	Address         string `json:"address"`
}

func (c *Client) BookAppointment(ctx context.Context, b Booking) error {
	return c.do(ctx, http.MethodPost, "/api/v1/appointment/", b, nil)
}

func (c *Client) Appointments(ctx context.Context, userID string) ([]model.Appointment, error) {
	var resp struct {
		Appointments []wireAppointment `json:"appointments"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/appointment/user/"+userID, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Appointment, len(resp.Appointments))
	for i, a := range resp.Appointments {
		out[i] = a.toModel()
	}
	return out, nil
}

func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/appointment/user/"+id, nil, nil)
}

type Message struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

func (c *Client) SendMessage(ctx context.Context, m Message) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/message/", m, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}
