package harvest

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"statharvest/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func locatorFixture(remote *fakeRemote) {
	remote.get("/AM", reply(`[{"id":"G1","text":"g1"},{"id":"G2","text":"g2"},{"id":"G3","text":"g3"},{"id":"G4","text":"g4"}]`))
	remote.get("/AM/G1", reply(`[{"id":"X","text":"x"},{"id":"Y","text":"y"}]`))
	remote.get("/AM/G2", replyStatus(http.StatusInternalServerError))
	remote.get("/AM/G3", reply(`[{"id":"Z","text":"z"},{"id":"AM0211E","text":"target"}]`))
	remote.get("/AM/G4", reply(`[{"id":"AM0211E","text":"duplicate"}]`))
}

func TestLocate(t *testing.T) {
	env := newTestEnv(t, 5)
	locatorFixture(env.remote)

	locator := NewLocator(env.client, env.tel)
	path, err := locator.Locate(context.Background(), Path{"AM"}, "AM0211E")
	require.NoError(t, err)
	require.Equal(t, Path{"AM", "G3", "AM0211E"}, path)

	// the failing group is reported and skipped, searching stops at the match
	require.True(t, env.tel.Has(telemetry.LevelWarning, report_locator_group))
	require.Equal(t, []string{
		"GET /api/AM",
		"GET /api/AM/G1",
		"GET /api/AM/G2",
		"GET /api/AM/G3",
	}, env.remote.paths())
}

func TestLocateNotFound(t *testing.T) {
	env := newTestEnv(t, 5)
	locatorFixture(env.remote)

	locator := NewLocator(env.client, env.tel)
	_, err := locator.Locate(context.Background(), Path{"AM"}, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	require.Equal(t, 1, env.remote.hits(http.MethodGet, "/AM/G4"))
}

func TestLocateOnlySecondLevel(t *testing.T) {
	env := newTestEnv(t, 5)
	// a group carrying the id is not a table and must not match
	env.remote.get("/AM", reply(`[{"id":"AM0211E","text":"group"}]`))
	env.remote.get("/AM/AM0211E", reply(`[{"id":"Other","text":"table"}]`))

	locator := NewLocator(env.client, env.tel)
	_, err := locator.Locate(context.Background(), Path{"AM"}, "AM0211E")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, env.remote.hits(http.MethodGet, "/AM/AM0211E/Other"))
}

func TestLocateRootFailure(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.get("/AM", replyStatus(http.StatusServiceUnavailable))

	locator := NewLocator(env.client, env.tel)
	_, err := locator.Locate(context.Background(), Path{"AM"}, "AM0211E")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}
