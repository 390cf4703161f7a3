package session

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"maunium.net/go/mautrix"

	"github.com/atomicstack/multiverse/internal/logging"
)

type scriptedPrompt struct {
	users     []string
	passwords []string
}

func (p *scriptedPrompt) Username() (string, error) {
	if len(p.users) == 0 {
		return "", io.EOF
	}
	u := p.users[0]
	p.users = p.users[1:]
	return u, nil
}

func (p *scriptedPrompt) Password() (string, error) {
	if len(p.passwords) == 0 {
		return "", io.EOF
	}
	pw := p.passwords[0]
	p.passwords = p.passwords[1:]
	return pw, nil
}

func quietLogs(t *testing.T) {
	t.Helper()
	logging.Configure(filepath.Join(t.TempDir(), "session.log"))
	t.Cleanup(func() { logging.Configure("") })
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	want := Session{Homeserver: "https://hs", UserID: "@me:hs", DeviceID: "DEV", AccessToken: "tok"}
	if err := Save(dir, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestLoadMissingSession(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLoginOrRestoreUsesStoredSession(t *testing.T) {
	dir := t.TempDir()
	stored := Session{Homeserver: "https://hs", UserID: "@me:hs", AccessToken: "tok"}
	if err := Save(dir, stored); err != nil {
		t.Fatalf("Save: %v", err)
	}
	login := func(string, string, string) (Session, error) {
		t.Fatalf("login should not be called")
		return Session{}, nil
	}
	var out strings.Builder
	got, err := LoginOrRestore(dir, "https://hs", login, &scriptedPrompt{}, &out)
	if err != nil {
		t.Fatalf("LoginOrRestore: %v", err)
	}
	if got != stored || !strings.Contains(out.String(), "restored session") {
		t.Fatalf("unexpected result %+v %q", got, out.String())
	}
}

func TestLoginOrRestoreRetriesThenSaves(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	attempts := 0
	login := func(hs, user, password string) (Session, error) {
		attempts++
		if password != "right" {
			return Session{}, errors.New("M_FORBIDDEN")
		}
		return Session{Homeserver: hs, UserID: "@" + user + ":hs", AccessToken: "tok"}, nil
	}
	prompt := &scriptedPrompt{users: []string{"me", "me"}, passwords: []string{"wrong", "right"}}
	var out strings.Builder
	got, err := LoginOrRestore(dir, "https://hs", login, prompt, &out)
	if err != nil {
		t.Fatalf("LoginOrRestore: %v", err)
	}
	if attempts != 2 || got.UserID != "@me:hs" {
		t.Fatalf("unexpected login result %+v after %d attempts", got, attempts)
	}
	for _, want := range []string{"Error logging in: M_FORBIDDEN", "Logged in as me", "saved session"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output %q is missing %q", out.String(), want)
		}
	}
	if stored, err := Load(dir); err != nil || stored != got {
		t.Fatalf("session not persisted: %+v %v", stored, err)
	}
}

func TestLoginOrRestoreStopsAtEndOfInput(t *testing.T) {
	login := func(string, string, string) (Session, error) {
		return Session{}, errors.New("nope")
	}
	_, err := LoginOrRestore(t.TempDir(), "https://hs", login, &scriptedPrompt{}, io.Discard)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestPasswordLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/login") || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"m.login.password"`) || !strings.Contains(string(body), `"alice"`) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"user_id":"@alice:hs","access_token":"secret","device_id":"DEV1"}`)
	}))
	defer srv.Close()

	s, err := PasswordLogin(srv.Client())(srv.URL, "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	want := Session{Homeserver: srv.URL, UserID: "@alice:hs", DeviceID: "DEV1", AccessToken: "secret"}
	if s != want {
		t.Fatalf("got %+v want %+v", s, want)
	}
}

func TestResolveHomeserver(t *testing.T) {
	orig := discover
	t.Cleanup(func() { discover = orig })
	discover = func(name string) (*mautrix.ClientWellKnown, error) {
		switch name {
		case "example.org":
			return &mautrix.ClientWellKnown{Homeserver: mautrix.HomeserverInfo{BaseURL: "https://matrix.example.org/"}}, nil
		case "bare.org":
			return nil, nil
		}
		return nil, errors.New("unreachable")
	}

	cases := map[string]string{
		"https://hs.example.org/": "https://hs.example.org",
		"http://localhost:8008":   "http://localhost:8008",
		"example.org":             "https://matrix.example.org",
		"bare.org":                "https://bare.org",
	}
	for in, want := range cases {
		got, err := ResolveHomeserver(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
	if _, err := ResolveHomeserver("broken.org"); err == nil {
		t.Fatalf("expected discovery failure")
	}
	if _, err := ResolveHomeserver(" "); err == nil {
		t.Fatalf("expected empty server to fail")
	}
}
