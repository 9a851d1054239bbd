package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkforce/notefs/internal/session"
	"github.com/agentworkforce/notefs/internal/snapi"
)

func writeTestConfig(t *testing.T, serverURL, dsn string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("server:\n  url: %s\nsession:\n  dsn: %s\nlog:\n  file: %s\n",
		serverURL, dsn, filepath.Join(dir, "notefs.log"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	cmd := a.command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	a.close()
	return out.String(), err
}

func plainNote(t *testing.T, id, content string) map[string]any {
	t.Helper()
	return map[string]any{
		"uuid":         id,
		"content_type": "Note",
		"content":      "000" + base64.StdEncoding.EncodeToString([]byte(content)),
		"created_at":   "2024-01-01T00:00:00.000Z",
		"updated_at":   "2024-01-02T00:00:00.000Z",
	}
}

type fakeSigner struct {
	calls []map[string]string
	key   string
}

func (f *fakeSigner) SignIn(ctx context.Context, email, password string, mfa map[string]string) (snapi.SignInResult, error) {
	f.calls = append(f.calls, mfa)
	if f.key != "" && mfa[f.key] == "" {
		return snapi.SignInResult{}, &snapi.MFARequiredError{Key: f.key}
	}
	return snapi.SignInResult{Token: "jwt"}, nil
}

func TestSignInAsksForCodeOnce(t *testing.T) {
	signer := &fakeSigner{key: "mfa_1"}
	asked := 0
	result, err := signIn(context.Background(), signer, "ann@example.com", "pw", func() (string, error) {
		asked++
		return " 123456 ", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "jwt", result.Token)
	assert.Equal(t, 1, asked)
	require.Len(t, signer.calls, 2)
	assert.Equal(t, map[string]string{"mfa_1": "123456"}, signer.calls[1])

	plain := &fakeSigner{}
	_, err = signIn(context.Background(), plain, "ann@example.com", "pw", func() (string, error) {
		t.Fatal("no code should be requested")
		return "", nil
	})
	require.NoError(t, err)
	assert.Len(t, plain.calls, 1)
}

func TestPromptHandlesMissingNewline(t *testing.T) {
	var out bytes.Buffer
	got, err := prompt(bufio.NewReader(strings.NewReader("ann@example.com")), &out, "Email: ")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", got)
	assert.Equal(t, "Email: ", out.String())

	_, err = prompt(bufio.NewReader(strings.NewReader("")), &out, "Email: ")
	assert.Error(t, err)
}

func TestLoginSavesSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/params":
			_, _ = w.Write([]byte(`{"identifier":"ann@example.com","version":"003","pw_cost":1000,"pw_nonce":"abc123"}`))
		case "/auth/sign_in":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["mfa_k"] != "654321" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"tag":"mfa-required","message":"code please","payload":{"mfa_key":"mfa_k"}}}`))
				return
			}
			_, _ = w.Write([]byte(`{"token":"jwt-login"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	sessionPath := filepath.Join(t.TempDir(), "session.json")
	cfg := writeTestConfig(t, server.URL, "file://"+sessionPath)
	out, err := runCLI(t, "ann@example.com\nhunter2\n654321\n", "--config", cfg, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ann@example.com")

	sess, err := session.NewFileStore(sessionPath).Load()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "jwt-login", sess.Token)
	assert.Equal(t, server.URL, sess.Server)
	assert.Equal(t, "003", sess.Version)
	assert.Equal(t, "af663d8927229be81fb580df391c164c1eb869d0c8f5453afd0b9e8daa91c9eb", sess.MasterKey)

	out, err = runCLI(t, "", "--config", cfg, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	_, err = os.Stat(sessionPath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCommandsRequireSession(t *testing.T) {
	cfg := writeTestConfig(t, "https://sync.example.com", "memory://")
	_, err := runCLI(t, "", "--config", cfg, "sync")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLsListsSyncedItems(t *testing.T) {
	var syncCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/sync" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		syncCalls++
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		resp := map[string]any{
			"retrieved_items": []any{
				plainNote(t, "n1", `{"title":"groceries","text":"milk","references":[]}`),
				plainNote(t, "n2", `{"title":"old plans","text":"x","references":[],"appData":{"org.standardnotes.sn":{"archived":true}}}`),
				map[string]any{
					"uuid":         "t1",
					"content_type": "Tag",
					"content":      "000" + base64.StdEncoding.EncodeToString([]byte(`{"title":"home","references":[{"uuid":"n1","content_type":"Note"}]}`)),
					"created_at":   "2024-01-01T00:00:00.000Z",
				},
			},
			"saved_items": []any{},
			"conflicts":   []any{},
			"sync_token":  "s1",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	sessionPath := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, session.NewFileStore(sessionPath).Save(&session.Session{
		Server:    server.URL,
		Email:     "ann@example.com",
		Token:     "jwt-1",
		UpdatedAt: time.Now().UTC(),
	}))
	cfg := writeTestConfig(t, "https://unused.example.com", sessionPath)

	out, err := runCLI(t, "", "--config", cfg, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "Notes (1)")
	assert.Contains(t, out, "groceries.txt")
	assert.NotContains(t, out, "old plans.txt")

	out, err = runCLI(t, "", "--config", cfg, "ls", "--archived")
	require.NoError(t, err)
	assert.Contains(t, out, "Archived (1)")
	assert.Contains(t, out, "old plans.txt")

	out, err = runCLI(t, "", "--config", cfg, "ls", "--tags")
	require.NoError(t, err)
	assert.Contains(t, out, "Tags (1)")
	assert.Contains(t, out, "home")

	out, err = runCLI(t, "", "--config", cfg, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "3 retrieved")
	assert.Equal(t, 4, syncCalls)

	_, err = runCLI(t, "", "--config", cfg, "ls", "--archived", "--trash")
	assert.Error(t, err)
}

func TestRenderListing(t *testing.T) {
	out := renderListing("Notes", []string{"a.txt", "b.txt"})
	assert.Contains(t, out, "Notes (2)")
	assert.Contains(t, out, "  a.txt")
	assert.Contains(t, out, "  b.txt")

	empty := renderListing("Trash", nil)
	assert.Contains(t, empty, "Trash (0)")
	assert.Contains(t, empty, "nothing here")
}

func TestReloadTokenSwapsOnlyValidSessions(t *testing.T) {
	store := session.NewMemoryStore()
	client := snapi.NewClient("https://sync.example.com", "old", snapi.ClientOptions{})

	reloadToken(store, client)
	assert.Equal(t, "old", client.Token())

	require.NoError(t, store.Save(&session.Session{Token: "new", Email: "ann@example.com"}))
	reloadToken(store, client)
	assert.Equal(t, "new", client.Token())
}
