// Package session is the client side of the cookie-based credential
// lifecycle. A Session attaches the access credential to every call and,
// when the server answers 401, rotates the credentials once and replays the
// call once.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"golang.org/x/sync/singleflight"
)

const (
	LoginPath   = common.LoginPath
	RotatePath  = common.RefreshPath
	LogoutPath  = common.LogoutPath
	SignupPath  = common.SignupPath
	accessName  = common.AccessTokenCookieName
	refreshName = common.RefreshTokenCookieName
)

// ErrSessionExpired means the credentials could not be renewed. Every call
// fails with it until Login succeeds again.
var ErrSessionExpired = errors.New("session expired, please login again")

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateRenewing
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRenewing:
		return "renewing"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Response is a fully read response. The body is read before the call's
// deadline is released.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is a non-2xx answer to an auth call.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Session holds the credentials of one logged-in user. Sessions are
// independent of each other and safe for concurrent use.
type Session struct {
	doer        Doer
	baseURL     string
	callTimeout time.Duration
	logger      logging.Logger

	mu      sync.Mutex
	state   State
	access  string
	refresh string

	rotations singleflight.Group
}

// New returns an anonymous session. callTimeout bounds each outbound call,
// rotation included; zero means no deadline.
func New(doer Doer, baseURL string, callTimeout time.Duration, logger logging.Logger) *Session {
	return &Session{
		doer:        doer,
		baseURL:     strings.TrimRight(baseURL, "/"),
		callTimeout: callTimeout,
		logger:      logger.With("module", "session"),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Signup creates an account. It does not log in.
func (s *Session) Signup(ctx context.Context, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := s.send(ctx, http.MethodPost, SignupPath, body)
	if err != nil {
		return err
	}
	return statusError(resp)
}

// Login exchanges email and password for credentials, leaving any previous
// state behind.
func (s *Session) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}

	resp, err := s.send(ctx, http.MethodPost, LoginPath, body)
	if err != nil {
		return err
	}
	if err := statusError(resp); err != nil {
		return err
	}

	access, refresh, ok := credentials(resp)
	if !ok {
		return errors.New("login response carries no credentials")
	}

	s.mu.Lock()
	s.access, s.refresh, s.state = access, refresh, StateAuthenticated
	s.mu.Unlock()
	return nil
}

// Logout revokes the refresh credentials on the server and forgets them
// locally, whatever the server answers.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	refresh := s.refresh
	s.access, s.refresh, s.state = "", "", StateAnonymous
	s.mu.Unlock()

	if refresh == "" {
		return nil
	}
	resp, err := s.send(ctx, http.MethodPost, LogoutPath, nil, &http.Cookie{Name: refreshName, Value: refresh})
	if err != nil {
		return err
	}
	return statusError(resp)
}

// Do sends an authenticated call. A 401 triggers at most one rotation and
// one replay with the same body; a second 401 ends the session with
// ErrSessionExpired. An anonymous session sends the call without
// credentials and never rotates.
func (s *Session) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	s.mu.Lock()
	state, access := s.state, s.access
	s.mu.Unlock()

	switch state {
	case StateUnauthenticated:
		return nil, ErrSessionExpired
	case StateAnonymous:
		return s.send(ctx, method, path, body)
	}

	resp, err := s.send(ctx, method, path, body, &http.Cookie{Name: accessName, Value: access})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || path == RotatePath {
		return resp, nil
	}

	if err := s.renew(ctx, access); err != nil {
		return nil, err
	}

	s.mu.Lock()
	access = s.access
	s.mu.Unlock()

	resp, err = s.send(ctx, method, path, body, &http.Cookie{Name: accessName, Value: access})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		s.expire(access)
		s.logger.Warn(ctx, "replayed call rejected, session ended", "path", path)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// renew rotates the credentials unless the access token that failed has
// already been replaced. Concurrent callers share one rotation.
func (s *Session) renew(ctx context.Context, failedAccess string) error {
	_, err, _ := s.rotations.Do("rotate", func() (any, error) {
		s.mu.Lock()
		switch {
		case s.state == StateUnauthenticated:
			s.mu.Unlock()
			return nil, ErrSessionExpired
		case s.access != failedAccess:
			s.mu.Unlock()
			return nil, nil
		}
		refresh := s.refresh
		s.state = StateRenewing
		s.mu.Unlock()

		// shared by every waiting caller, so not bound to this caller's cancellation
		return nil, s.rotate(context.WithoutCancel(ctx), refresh)
	})
	return err
}

func (s *Session) rotate(ctx context.Context, refresh string) error {
	resp, err := s.send(ctx, http.MethodPost, RotatePath, nil, &http.Cookie{Name: refreshName, Value: refresh})
	if err != nil {
		return s.endSession(ctx, fmt.Errorf("rotation failed: %w", err))
	}

	access, newRefresh, ok := credentials(resp)
	if resp.StatusCode != http.StatusOK || !ok {
		cause := statusError(resp)
		if cause == nil {
			cause = errors.New("rotation response carries no credentials")
		}
		return s.endSession(ctx, fmt.Errorf("rotation rejected: %w", cause))
	}

	s.mu.Lock()
	s.access, s.refresh, s.state = access, newRefresh, StateAuthenticated
	s.mu.Unlock()
	s.logger.Debug(ctx, "credentials rotated")
	return nil
}

// endSession drops the credentials after a failed rotation. The returned
// error matches ErrSessionExpired and still carries cause.
func (s *Session) endSession(ctx context.Context, cause error) error {
	s.mu.Lock()
	s.access, s.refresh, s.state = "", "", StateUnauthenticated
	s.mu.Unlock()
	s.logger.Warn(ctx, "credential rotation failed, session ended", "error", cause)
	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}

// expire ends the session unless a newer token has arrived meanwhile.
func (s *Session) expire(rejectedAccess string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access == rejectedAccess {
		s.access, s.refresh, s.state = "", "", StateUnauthenticated
	}
}

// send performs one call under the call deadline and reads the whole body.
func (s *Session) send(ctx context.Context, method, path string, body []byte, cookies ...*http.Cookie) (*Response, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := s.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func credentials(resp *Response) (access, refresh string, ok bool) {
	for _, c := range (&http.Response{Header: resp.Header}).Cookies() {
		switch c.Name {
		case accessName:
			access = c.Value
		case refreshName:
			refresh = c.Value
		}
	}
	return access, refresh, access != "" && refresh != ""
}

func statusError(resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body, &body)
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Message}
}
