package cli

import (
	"bufio"
	"io"
	"net/http"

	"github.com/dmitrijs2005/bizledger/internal/client/config"
	"github.com/dmitrijs2005/bizledger/internal/client/session"
	"github.com/dmitrijs2005/bizledger/internal/logging"
)

// App is the client state shared by the cobra commands and the REPL.
type App struct {
	config  *config.Config
	session *session.Session
	reader  *bufio.Reader
	out     io.Writer
	logger  logging.Logger
	email   string
}

// NewApp builds an anonymous client. Prompts read from in and everything
// user-facing is written to out.
func NewApp(c *config.Config, in io.Reader, out io.Writer, l logging.Logger) *App {
	return &App{
		config:  c,
		session: session.New(&http.Client{}, c.ServerBaseURL, c.CallTimeout, l),
		reader:  bufio.NewReader(in),
		out:     out,
		logger:  l.With("module", "cli"),
	}
}

func (a *App) isLoggedIn() bool {
	switch a.session.State() {
	case session.StateAuthenticated, session.StateRenewing:
		return true
	}
	return false
}

func (a *App) getStatus() string {
	if a.isLoggedIn() {
		return "(" + a.email + ")"
	}
	if a.session.State() == session.StateUnauthenticated {
		return "(session expired)"
	}
	return "(not logged in)"
}
