// Package session restores a Matrix login from the session directory or
// creates one with a username and password.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/term"
	"maunium.net/go/mautrix"

	"github.com/atomicstack/multiverse/internal/logging"
)

// FileName is the session file inside the session directory.
const FileName = "session.cbor"

const deviceDisplayName = "multiverse"

// Session is what a login yields and what is persisted between runs.
type Session struct {
	Homeserver  string `cbor:"1,keyasint"`
	UserID      string `cbor:"2,keyasint"`
	DeviceID    string `cbor:"3,keyasint,omitempty"`
	AccessToken string `cbor:"4,keyasint"`
}

func (s Session) valid() bool {
	return s.Homeserver != "" && s.UserID != "" && s.AccessToken != ""
}

// Load reads the session stored in dir. A missing file is reported with an
// error wrapping os.ErrNotExist.
func Load(dir string) (Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decoding session: %w", err)
	}
	if !s.valid() {
		return Session{}, fmt.Errorf("session file %s is incomplete", filepath.Join(dir, FileName))
	}
	return s, nil
}

// Save writes s to dir, readable only by the current user.
func Save(dir string, s Session) error {
	data, err := cbor.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0o600)
}

// discover resolves a server name through .well-known/matrix/client.
var discover = mautrix.DiscoverClientAPI

// ResolveHomeserver turns a server name or URL into the client-server API
// base URL. URLs are used as they are.
func ResolveHomeserver(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", errors.New("missing server name")
	}
	if u, err := url.Parse(server); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return strings.TrimRight(server, "/"), nil
	}
	wk, err := discover(server)
	if err != nil {
		return "", fmt.Errorf("discovering homeserver for %s: %w", server, err)
	}
	if wk == nil || wk.Homeserver.BaseURL == "" {
		return "https://" + server, nil
	}
	return strings.TrimRight(wk.Homeserver.BaseURL, "/"), nil
}

// Authenticator logs in with a username and password.
type Authenticator func(homeserver, username, password string) (Session, error)

// PasswordLogin returns an Authenticator using the m.login.password flow.
func PasswordLogin(httpClient *http.Client) Authenticator {
	return func(homeserver, username, password string) (Session, error) {
		api, err := mautrix.NewClient(homeserver, "", "")
		if err != nil {
			return Session{}, err
		}
		if httpClient != nil {
			api.Client = httpClient
		}
		resp, err := api.Login(&mautrix.ReqLogin{
			Type: mautrix.AuthTypePassword,
			Identifier: mautrix.UserIdentifier{
				Type: mautrix.IdentifierTypeUser,
				User: username,
			},
			Password:                 password,
			InitialDeviceDisplayName: deviceDisplayName,
		})
		if err != nil {
			return Session{}, err
		}
		return Session{
			Homeserver:  homeserver,
			UserID:      resp.UserID.String(),
			DeviceID:    resp.DeviceID.String(),
			AccessToken: resp.AccessToken,
		}, nil
	}
}

// Prompter asks for credentials.
type Prompter interface {
	Username() (string, error)
	Password() (string, error)
}

// Terminal prompts on a terminal, reading the password without echo when
// in is a tty.
type Terminal struct {
	in     *bufio.Reader
	fd     int
	isTTY  bool
	output io.Writer
}

// NewTerminal builds a prompter on stdin and stdout.
func NewTerminal() *Terminal {
	fd := int(os.Stdin.Fd())
	return &Terminal{
		in:     bufio.NewReader(os.Stdin),
		fd:     fd,
		isTTY:  term.IsTerminal(fd),
		output: os.Stdout,
	}
}

func (t *Terminal) Username() (string, error) {
	fmt.Fprint(t.output, "\nUsername: ")
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) Password() (string, error) {
	fmt.Fprint(t.output, "Password: ")
	if !t.isTTY {
		line, err := t.in.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	raw, err := term.ReadPassword(t.fd)
	fmt.Fprintln(t.output)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// LoginOrRestore returns the session stored in dir, or logs in on homeserver
// until a login succeeds and saves the new session. It stops when the
// prompter fails, e.g. at end of input.
func LoginOrRestore(dir, homeserver string, login Authenticator, prompt Prompter, out io.Writer) (Session, error) {
	s, err := Load(dir)
	if err == nil {
		fmt.Fprintln(out, "restored session")
		return s, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		logging.Warn(err, "ignoring stored session")
	}

	fmt.Fprintln(out, "Logging in with username and password...")
	for {
		username, err := prompt.Username()
		if err != nil {
			return Session{}, fmt.Errorf("reading username: %w", err)
		}
		password, err := prompt.Password()
		if err != nil {
			return Session{}, fmt.Errorf("reading password: %w", err)
		}
		s, err = login(homeserver, username, password)
		if err == nil {
			fmt.Fprintf(out, "Logged in as %s\n", username)
			break
		}
		logging.Warn(err, "login failed")
		fmt.Fprintf(out, "Error logging in: %v\nPlease try again\n", err)
	}
	fmt.Fprintln(out, "new login")

	if err := Save(dir, s); err != nil {
		return Session{}, fmt.Errorf("saving session: %w", err)
	}
	fmt.Fprintln(out, "saved session")
	return s, nil
}
