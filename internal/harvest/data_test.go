package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"statharvest/internal/components/chrono"
	"statharvest/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

const tablePath = "/AM/AM0211/AM0211E/LonForArbSkattSektor"

const dataBody = `{"columns":[{"code":"Sektor","text":"sektor","type":"d"},{"code":"Tid","text":"år","type":"t"},{"code":"AM0211E1","text":"Lön","type":"c"}],` +
	`"data":[{"key":["1","2022"],"values":["31200"]},{"key":["1","2023"],"values":["32800"]}]}`

func testQuery() Query {
	return Query{
		Selections: []Selection{
			{Code: "Sektor", Values: []string{"1"}},
			{Code: "Tid", Values: []string{"2022", "2023"}},
		},
		ResponseFormat: ResponseFormatJSON,
	}
}

func TestFetchData(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.post(tablePath, reply(dataBody))

	result, err := env.client.FetchData(context.Background(), ParsePath(tablePath), testQuery())
	require.NoError(t, err)

	require.Equal(t, "LonForArbSkattSektor", result.TableID)
	require.Equal(t, 0, result.Retries)
	require.Len(t, result.Columns, 3)
	require.Equal(t, ColumnDescriptor{Code: "Tid", Text: "år", Type: "t"}, result.Columns[1])
	require.Equal(t, []Row{
		{Key: []string{"1", "2022"}, Values: []string{"31200"}},
		{Key: []string{"1", "2023"}, Values: []string{"32800"}},
	}, result.Rows)
	require.Equal(t, dataBody, string(result.Raw))

	counts := env.tel.Reports(telemetry.LevelCount)
	require.Len(t, counts, 1)
	require.Equal(t, "harvest: "+report_data_rows, counts[0].ID)
	require.Equal(t, int64(2), counts[0].Count)

	bodies := env.remote.bodies(http.MethodPost, tablePath)
	require.Len(t, bodies, 1)
	require.JSONEq(t, `{
		"query": [
			{"code": "Sektor", "selection": {"filter": "item", "values": ["1"]}},
			{"code": "Tid", "selection": {"filter": "item", "values": ["2022", "2023"]}}
		],
		"response": {"format": "json"}
	}`, bodies[0])
}

func TestFetchDataRateLimited(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.post(
		tablePath,
		replyStatus(http.StatusTooManyRequests),
		replyStatus(http.StatusTooManyRequests),
		reply(dataBody),
	)

	result, err := env.client.FetchData(context.Background(), ParsePath(tablePath), testQuery())
	require.NoError(t, err)
	require.Equal(t, 2, result.Retries)
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, env.clock.Sleeps())
	require.Equal(t, 3, env.remote.hits(http.MethodPost, tablePath))
	require.Equal(t, dataBody, string(result.Raw))
	require.True(t, env.tel.Has(telemetry.LevelWarning, report_client_retry))
}

func TestFetchDataPayloadTooLarge(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.post(tablePath, replyStatus(http.StatusRequestEntityTooLarge), reply(dataBody))

	result, err := env.client.FetchData(context.Background(), ParsePath(tablePath), testQuery())
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.NotErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, 0, result.Retries)
	require.Empty(t, env.clock.Sleeps())
	require.Equal(t, 1, env.remote.hits(http.MethodPost, tablePath))
}

func TestFetchDataRetriesExhausted(t *testing.T) {
	env := newTestEnv(t, 2)
	env.remote.post(tablePath, replyStatus(http.StatusTooManyRequests))

	result, err := env.client.FetchData(context.Background(), ParsePath(tablePath), testQuery())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.ErrorIs(t, err, ErrRateLimited)

	var exhausted *RetriesExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, 3, exhausted.Attempts)

	require.Equal(t, 2, result.Retries)
	require.Len(t, env.clock.Sleeps(), 2)
	require.Equal(t, 3, env.remote.hits(http.MethodPost, tablePath))
	require.True(t, env.tel.Has(telemetry.LevelBroken, report_client_retry))
}

func TestFetchDataHTTPError(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.post(tablePath, fakeResponse{status: http.StatusBadRequest, body: `{"error":"bad selection"}`})

	_, err := env.client.FetchData(context.Background(), ParsePath(tablePath), testQuery())

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	require.Contains(t, httpErr.Body, "bad selection")
	require.NotErrorIs(t, err, ErrRateLimited)
	require.NotErrorIs(t, err, ErrPayloadTooLarge)
	require.Empty(t, env.clock.Sleeps())
}

func TestFetchDataTransportError(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.server.Close()

	_, err := env.client.FetchData(context.Background(), ParsePath(tablePath), testQuery())
	require.ErrorIs(t, err, ErrTransport)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, http.MethodPost, transportErr.Method)
	require.NotNil(t, transportErr.Err)
}

func TestFetchDataCancelled(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.post(tablePath, reply(dataBody))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.client.FetchData(ctx, ParsePath(tablePath), testQuery())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, env.remote.hits(http.MethodPost, tablePath))
}

func TestFetchDataUnexpectedShape(t *testing.T) {
	env := newTestEnv(t, 5)
	env.remote.post(tablePath, reply(`[{"id":"x","text":"y"}]`))

	_, err := env.client.FetchData(context.Background(), ParsePath(tablePath), testQuery())
	require.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestQueryWireFormat(t *testing.T) {
	encoded, err := json.Marshal(testQuery())
	require.NoError(t, err)

	var decoded Query
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, testQuery(), decoded)

	encoded, err = json.Marshal(Query{Selections: []Selection{{Code: "Tid"}}})
	require.NoError(t, err)
	require.JSONEq(t, `{"query":[{"code":"Tid","selection":{"filter":"item","values":[]}}],"response":{"format":"json"}}`, string(encoded))
}

type exchangeRecorder struct {
	mu        sync.Mutex
	exchanges map[string]string
}

func (r *exchangeRecorder) Write(id string, contents string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges[id] = contents
}

func TestClientExchangeOutput(t *testing.T) {
	remote := newFakeRemote(t)
	remote.post(tablePath, replyStatus(http.StatusTooManyRequests), reply(dataBody))

	exchanges := &exchangeRecorder{exchanges: map[string]string{}}
	client := NewClient(ClientOptions{
		BaseUrl:    remote.url(),
		MaxRetries: 1,
		Exchanges:  exchanges,
	}, telemetry.NewRecorder(), chrono.NewFake(time.Now()))

	_, err := client.FetchData(context.Background(), ParsePath(tablePath), testQuery())
	require.NoError(t, err)

	require.Len(t, exchanges.exchanges, 2)
	require.Contains(t, exchanges.exchanges["1"], "429")
	require.Contains(t, exchanges.exchanges["2"], "POST")
	require.Contains(t, exchanges.exchanges["2"], "31200")
}
