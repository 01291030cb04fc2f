package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/dmitrijs2005/bizledger/internal/client/session"
	"github.com/dmitrijs2005/bizledger/internal/common"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Surname  string `json:"surname,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

type checkResponse struct {
	Message string `json:"message"`
	User    struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type submitResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

// Signup prompts for account details and creates the account.
func (a *App) Signup(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	req := signupRequest{
		Email:    email,
		Password: string(password),
		Name:     GetOptionalText(a.reader, "Enter name", a.out),
		Surname:  GetOptionalText(a.reader, "Enter surname", a.out),
		Gender:   GetOptionalText(a.reader, "Enter gender", a.out),
	}
	if err := a.session.Signup(ctx, req); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "User signed up successfully")
	return nil
}

// Login prompts for the email and password.
func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	return a.LoginAs(ctx, email)
}

// LoginAs prompts for the password of email only.
func (a *App) LoginAs(ctx context.Context, email string) error {
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.session.Login(ctx, email, string(password)); err != nil {
		return err
	}
	a.email = email
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Check asks the server who the current credentials belong to.
func (a *App) Check(ctx context.Context) error {
	resp, err := a.call(ctx, http.MethodPost, common.CheckPath, nil)
	if err != nil {
		return err
	}
	var body checkResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("decode check response: %w", err)
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", body.User.Email, body.User.ID)
	return nil
}

// SubmitOrder sends the order stored as JSON in path.
func (a *App) SubmitOrder(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("%s: not a JSON document", path)
	}

	resp, err := a.call(ctx, http.MethodPost, common.OrdersPath, data)
	if err != nil {
		return err
	}
	var body submitResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("decode submit response: %w", err)
	}
	fmt.Fprintf(a.out, "%s (order %s)\n", body.Message, body.OrderID)
	return nil
}

// GetOrder prints the order of buyerID on orderDate.
func (a *App) GetOrder(ctx context.Context, buyerID, orderDate string) error {
	path := common.OrdersPath + "/" + url.PathEscape(buyerID) + "/" + url.PathEscape(orderDate)
	resp, err := a.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
		return fmt.Errorf("decode order: %w", err)
	}
	fmt.Fprintln(a.out, pretty.String())
	return nil
}

// Logout revokes the session on the server and forgets it locally.
func (a *App) Logout(ctx context.Context) error {
	a.email = ""
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// call sends an authenticated request and turns a non-2xx answer into a
// *session.StatusError.
func (a *App) call(ctx context.Context, method, path string, body []byte) (*session.Response, error) {
	if !a.isLoggedIn() {
		if a.session.State() == session.StateUnauthenticated {
			return nil, session.ErrSessionExpired
		}
		return nil, errNotLoggedIn
	}
	resp, err := a.session.Do(ctx, method, path, body)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			a.email = ""
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(resp.Body, &msg)
		return nil, &session.StatusError{StatusCode: resp.StatusCode, Message: msg.Message}
	}
	return resp, nil
}

var errNotLoggedIn = errors.New("not logged in, use login first")
