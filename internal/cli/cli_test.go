package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")
	k, err := loadKeyringAt(path)
	require.NoError(t, err)
	assert.Empty(t, k.IDs())

	k.Set(2, "hunter")
	k.Set(1, "secret")
	require.NoError(t, k.Save())

	loaded, err := loadKeyringAt(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, loaded.IDs())

	creds, err := loaded.Credentials(1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []Credential{
		{PlayerID: 1, Password: "secret"},
		{PlayerID: 2, Password: "hunter"},
		{PlayerID: 1, Password: "secret"},
	}, creds)

	_, err = loaded.Credentials(3)
	assert.EqualError(t, err, "no saved password for player 3: run `fl login 3`")

	assert.True(t, loaded.Remove(2))
	assert.False(t, loaded.Remove(2))
}

func TestLoadKeyringFromHome(t *testing.T) {
	t.Setenv("FL_HOME", t.TempDir())
	k, err := LoadKeyring()
	require.NoError(t, err)
	k.Set(5, "abcdef")
	require.NoError(t, k.Save())

	again, err := LoadKeyring()
	require.NoError(t, err)
	assert.Equal(t, "abcdef", again.Players[5])
}

type captured struct {
	path, idem, authz string
	body              map[string]any
}

func TestClientSendsHeaders(t *testing.T) {
	seen := make(chan captured, 2)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{path: r.URL.Path, idem: r.Header.Get("Idempotency-Key"), authz: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		seen <- c
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"exchange":{"id":9}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", "tok")
	creds := []Credential{{PlayerID: 1, Password: "secret"}, {PlayerID: 2, Password: "hunter"}}
	out, err := c.Transfer(context.Background(), creds, 1, 2, Units{Coin: 5}, "idem-1")
	require.NoError(t, err)
	assert.EqualValues(t, 9, out["exchange"].(map[string]any)["id"])

	got := <-seen
	assert.Equal(t, "/v1/exchanges/transfer", got.path)
	assert.Equal(t, "idem-1", got.idem)
	assert.Empty(t, got.authz)
	assert.Len(t, got.body["auth"], 2)

	_, err = c.AdminInit(context.Background())
	require.NoError(t, err)
	got = <-seen
	assert.Equal(t, "Bearer tok", got.authz)
}

func TestClientAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"duplicate idempotency key"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	_, err := c.Do(context.Background(), http.MethodPost, "/v1/exchanges/transfer", map[string]any{}, "k")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "duplicate idempotency key", apiErr.Message)
	assert.Equal(t, "api status 409: duplicate idempotency key", err.Error())
}

func TestErrorMessageFallsBackToBody(t *testing.T) {
	assert.Equal(t, "bad gateway", errorMessage([]byte(" bad gateway \n")))
	assert.Equal(t, "x", errorMessage([]byte(`{"error":"x"}`)))
}
