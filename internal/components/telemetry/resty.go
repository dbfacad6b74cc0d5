package telemetry

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
	report_resty_exchange = "resty.exchange"
)

// ExchangeOutput receives the full text of every request/response exchange.
type ExchangeOutput interface {
	Write(id string, contents string)
}

type restyHooks struct {
	tel    API
	output ExchangeOutput
	tracer trace.Tracer
	nextId *atomic.Uint64
}

// InstrumentResty opens a span per request on the global tracer provider and
// reports every request and response. Every exchange is also written to
// output when it is not nil.
func InstrumentResty(client *resty.Client, tel API, output ExchangeOutput) {
	hooks := restyHooks{
		tel:    tel,
		output: output,
		tracer: otel.Tracer("statharvest/resty"),
		nextId: &atomic.Uint64{},
	}
	client.OnBeforeRequest(hooks.before)
	client.OnAfterResponse(hooks.after)
	client.OnError(hooks.failed)
}

type exchangeKeyType struct{}

var exchangeKey exchangeKeyType

// exchange identifies a request across the hooks, wall time is fine for the
// duration since only the difference matters.
type exchange struct {
	id      uint64
	started time.Time
}

func exchangeFrom(ctx context.Context) (exchange, bool) {
	ex, ok := ctx.Value(exchangeKey).(exchange)
	return ex, ok
}

func (h restyHooks) before(_ *resty.Client, req *resty.Request) error {
	ctx, _ := h.tracer.Start(req.Context(), "http "+req.Method)
	ex := exchange{id: h.nextId.Add(1), started: time.Now()}
	req.SetContext(context.WithValue(ctx, exchangeKey, ex))

	h.tel.ReportDebug(report_resty_request, ex.id, req.Method, req.URL)
	return nil
}

func (h restyHooks) after(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", res.Request.Method),
		attribute.String("url.full", res.Request.URL),
		attribute.Int("http.response.status_code", res.StatusCode()),
	)

	ex, ok := exchangeFrom(ctx)
	if !ok {
		panic("resty response without an exchange, was the request hook registered?")
	}
	h.tel.ReportDebug(report_resty_response, ex.id, time.Since(ex.started).String(), res.Status())

	if h.output != nil {
		h.output.Write(strconv.FormatUint(ex.id, 10), formatHttpMessage(res))
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		h.tel.ReportDebug(report_resty_exchange, ex.id, formatHttpMessage(res))
	}
	return nil
}

func (h restyHooks) failed(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()
	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")

	var elapsed time.Duration
	if ex, ok := exchangeFrom(req.Context()); ok {
		elapsed = time.Since(ex.started)
	}
	h.tel.ReportWarning(report_resty_response, err, req.Method, req.URL, elapsed)
}

func writeHeaders(out *strings.Builder, headers http.Header) {
	keys := slices.Sorted(maps.Keys(headers))
	for _, key := range keys {
		for _, value := range headers[key] {
			fmt.Fprintf(out, "%s: %s\n", key, value)
		}
	}
}

func requestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<no body>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("<body unavailable: %v>", err)
	}
	if body == nil {
		return "<no body>"
	}
	defer body.Close()
	contents, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("<body unreadable: %v>", err)
	}
	return string(contents)
}

// formatHttpMessage renders a request and its response as plain text, headers
// are sorted so two dumps of the same exchange compare equal.
func formatHttpMessage(res *resty.Response) string {
	var out strings.Builder

	out.WriteString(">>> ")
	out.WriteString(res.Request.Method)
	out.WriteString(" ")
	out.WriteString(res.Request.URL)
	out.WriteString("\n")
	raw := res.Request.RawRequest
	if raw != nil {
		writeHeaders(&out, raw.Header)
	}
	out.WriteString("\n")
	out.WriteString(requestBody(raw))
	out.WriteString("\n\n")

	out.WriteString("<<< ")
	out.WriteString(strconv.Itoa(res.StatusCode()))
	out.WriteString("\n")
	writeHeaders(&out, res.Header())
	out.WriteString("\n")
	out.WriteString(res.String())
	out.WriteString("\n")

	return out.String()
}
