package telemetry

// API is what components report through instead of logging directly, tests
// hand in a Recorder and assert on what was reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way someone should
	// look at.
	//
	// The id names the component and operation, not the detail of what went
	// wrong: a failed listing in the walker is `walker.list`, whether it was
	// a 500 or a reset connection goes into the params. Ids are lowercase,
	// `<struct or intf>.<method>`, the package is added by ScopedAPI.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unexpected the component recovered
	// from, ids follow ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug is only visible with verbose logging.
	ReportDebug(msg string, params ...any)

	// ReportCount records a point-in-time count, ids follow ReportBroken.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, usually the package name.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scope(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scope(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scope(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scope(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scope(id), count)
}
