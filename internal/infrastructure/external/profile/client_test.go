package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/circuitbreaker"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

func TestChildDTO_ToDomain(t *testing.T) {
	c, err := ChildDTO{ID: "c1", Birthdate: "2025-06-15", Gender: "feminino", DisplayName: " Ana "}.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.DisplayName)
	assert.Equal(t, child.GenderFemale, c.Gender)
	assert.Equal(t, 2025, c.Birthdate.Year())
	assert.Equal(t, time.June, c.Birthdate.Month())
	assert.Equal(t, 15, c.Birthdate.Day())

	c, err = ChildDTO{ID: "c2"}.ToDomain()
	require.NoError(t, err)
	assert.False(t, c.HasBirthdate())

	_, err = ChildDTO{ID: "c3", Birthdate: "next tuesday"}.ToDomain()
	assert.Error(t, err)
}

func TestChildDTO_ToDomain_TimestampKeepsCalendarDate(t *testing.T) {
	for _, raw := range []string{
		"2025-01-05T00:00:00Z",
		"2025-01-05T00:00:00.000Z",
		"2025-01-05T23:30:00-03:00",
		"2025-01-05T01:00:00+09:00",
	} {
		c, err := ChildDTO{ID: "c1", Birthdate: raw}.ToDomain()
		require.NoError(t, err, raw)
		assert.Equal(t, timeutil.Date(2025, time.January, 5), c.Birthdate, raw)

		// The day before the monthly birthday still counts the previous month.
		age, err := child.ComputeAgeMonths(c.Birthdate, timeutil.Date(2025, time.November, 4))
		require.NoError(t, err, raw)
		assert.Equal(t, 9, age, raw)
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second})
}

func TestClient_GetChild(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/children/c1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"c1","birthdate":"2025-01-10","gender":"male","display_name":"Leo"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"NOT_FOUND","message":"no such child"}`))
		}
	})

	c, err := client.GetChild(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Leo", c.DisplayName)
	assert.Equal(t, child.GenderMale, c.Gender)

	_, err = client.GetChild(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.False(t, shared.IsExternalService(err))
}

func TestClient_CanAccess(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/u1/children/c1/access":
			_, _ = w.Write([]byte(`{"allowed":true}`))
		case "/users/u2/children/c1/access":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	ok, err := client.CanAccess(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.CanAccess(context.Background(), "u2", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.CanAccess(context.Background(), "u3", "c1")
	assert.True(t, shared.IsExternalService(err))
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 3; i++ {
		_, err := client.GetChild(context.Background(), "c1")
		assert.True(t, shared.IsExternalService(err))
	}
	assert.Equal(t, circuitbreaker.StateOpen, client.BreakerState())

	_, err := client.GetChild(context.Background(), "c1")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 5; i++ {
		_, err := client.GetChild(context.Background(), "gone")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, client.BreakerState())
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(child.Child{ID: "c1", DisplayName: "Ana"}, child.Child{ID: "c2"})
	p.Grant("u1", "c1")

	c, err := p.GetChild(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.DisplayName)

	_, err = p.GetChild(context.Background(), "c9")
	assert.ErrorIs(t, err, shared.ErrChildNotFound)

	ok, _ := p.CanAccess(context.Background(), "u1", "c1")
	assert.True(t, ok)
	ok, _ = p.CanAccess(context.Background(), "u2", "c1")
	assert.False(t, ok)
	ok, _ = p.CanAccess(context.Background(), "anyone", "c2")
	assert.True(t, ok)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "children.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`children:
  - id: c1
    birthdate: 2025-06-15
    gender: feminino
    display_name: Ana
    users: [u1]
  - id: c2
    display_name: Leo
`), 0o600))

	p, err := LoadSeedFile(path)
	require.NoError(t, err)

	c, err := p.GetChild(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, child.GenderFemale, c.Gender)
	assert.Equal(t, 15, c.Birthdate.Day())

	ok, _ := p.CanAccess(context.Background(), "u2", "c1")
	assert.False(t, ok)
	ok, _ = p.CanAccess(context.Background(), "u2", "c2")
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("children:\n  - display_name: nobody\n"), 0o600))
	_, err = LoadSeedFile(path)
	assert.Error(t, err)
}
