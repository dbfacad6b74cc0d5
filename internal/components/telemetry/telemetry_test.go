package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	scoped := NewScopedAPI("walker", rec)

	scoped.ReportBroken("list", "boom")
	scoped.ReportWarning("depth")
	scoped.ReportDebug("visit", 1)
	scoped.ReportCount("nodes", 4)

	broken := rec.Reports(LevelBroken)
	require.Len(t, broken, 1)
	require.Equal(t, "walker: list", broken[0].ID)
	require.Equal(t, []any{"boom"}, broken[0].Params)

	require.True(t, rec.Has(LevelWarning, "depth"))
	require.True(t, rec.Has(LevelDebug, "walker: visit"))
	require.False(t, rec.Has(LevelBroken, "depth"))

	counts := rec.Reports(LevelCount)
	require.Len(t, counts, 1)
	require.Equal(t, int64(4), counts[0].Count)
}

func TestSlogAPI(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	buff := &bytes.Buffer{}
	initSlog(buff, false)

	api := SlogAPI{}
	api.ReportDebug("hidden")
	api.ReportBroken("client.fetch", "status 500")

	out := buff.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "id=client.fetch")
	require.Contains(t, out, `params.0="status 500"`)
}

func TestSetupWithoutEndpoints(t *testing.T) {
	tel, err := Setup(context.Background(), "test:telemetry", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

type exchangeSink struct {
	mu        sync.Mutex
	exchanges map[string]string
}

func (s *exchangeSink) Write(id string, contents string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges[id] = contents
}

func TestInstrumentRestyErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Reason", "missing")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such node"}`))
	}))
	defer server.Close()

	testCases := []struct {
		name string
		sink *exchangeSink
	}{
		{name: "without output"},
		{name: "with output", sink: &exchangeSink{exchanges: map[string]string{}}},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			rec := NewRecorder()
			client := resty.New().SetBaseURL(server.URL)
			var output ExchangeOutput
			if test.sink != nil {
				output = test.sink
			}
			InstrumentResty(client, rec, output)

			for _, method := range []string{http.MethodGet, http.MethodDelete} {
				res, err := client.R().Execute(method, "/AM/A")
				require.NoError(t, err)
				require.Equal(t, http.StatusNotFound, res.StatusCode())
			}

			exchanges := rec.Reports(LevelDebug)
			var formatted []string
			for _, report := range exchanges {
				if report.ID == report_resty_exchange {
					formatted = append(formatted, report.Params[1].(string))
				}
			}
			require.Len(t, formatted, 2)
			require.Contains(t, formatted[0], ">>> GET")
			require.Contains(t, formatted[0], "<no body>")
			require.Contains(t, formatted[0], "<<< 404")
			require.Contains(t, formatted[0], "no such node")

			if test.sink != nil {
				require.Len(t, test.sink.exchanges, 2)
				require.Contains(t, test.sink.exchanges["1"], "X-Reason: missing")
				require.Contains(t, test.sink.exchanges["2"], ">>> DELETE")
			}
		})
	}
}
