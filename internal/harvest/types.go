package harvest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Path is the ordered sequence of ids from the hierarchy root to a node.
type Path []string

// ParsePath splits a slash separated path, empty segments are dropped.
func ParsePath(s string) Path {
	var out Path
	for _, segment := range strings.Split(s, "/") {
		if segment == "" {
			continue
		}
		out = append(out, segment)
	}
	return out
}

// Child returns a new path with id appended, the receiver is never modified.
func (p Path) Child(id string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, id)
}

// Contains returns true if id is one of the path's segments.
func (p Path) Contains(id string) bool {
	for _, segment := range p {
		if segment == id {
			return true
		}
	}
	return false
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

const (
	nodeTypeLevel = "l"
	nodeTypeTable = "t"
)

// CatalogNode is a single entry of a hierarchy listing.
type CatalogNode struct {
	ID    string
	Text  string
	Type  string
	Path  Path
	Depth int
	// Leaf is true when the node has no children, it corresponds to a
	// queryable table.
	Leaf bool
}

type listingItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type ValueDescriptor struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type VariableDescriptor struct {
	Code        string
	Text        string
	Values      []ValueDescriptor
	Time        bool
	Elimination bool
}

// UnmarshalJSON accepts both `values: [{id, text}]` and the PX-Web shape of
// parallel `values: [string]` + `valueTexts: [string]` arrays.
func (v *VariableDescriptor) UnmarshalJSON(data []byte) error {
	var wire struct {
		Code        string            `json:"code"`
		Text        string            `json:"text"`
		Values      []json.RawMessage `json:"values"`
		ValueTexts  []string          `json:"valueTexts"`
		Time        bool              `json:"time"`
		Elimination bool              `json:"elimination"`
	}
	err := json.Unmarshal(data, &wire)
	if err != nil {
		return err
	}

	v.Code = wire.Code
	v.Text = wire.Text
	v.Time = wire.Time
	v.Elimination = wire.Elimination
	v.Values = make([]ValueDescriptor, len(wire.Values))
	for i, raw := range wire.Values {
		var id string
		if json.Unmarshal(raw, &id) == nil {
			v.Values[i] = ValueDescriptor{ID: id, Text: id}
			if i < len(wire.ValueTexts) {
				v.Values[i].Text = wire.ValueTexts[i]
			}
			continue
		}
		var value ValueDescriptor
		err = json.Unmarshal(raw, &value)
		if err != nil {
			return fmt.Errorf("variable %s: value %d: %w", wire.Code, i, err)
		}
		v.Values[i] = value
	}
	return nil
}

// MarshalJSON writes the `values: [{id, text}]` shape.
func (v VariableDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code        string            `json:"code"`
		Text        string            `json:"text"`
		Values      []ValueDescriptor `json:"values"`
		Time        bool              `json:"time,omitempty"`
		Elimination bool              `json:"elimination,omitempty"`
	}{v.Code, v.Text, v.Values, v.Time, v.Elimination})
}

// ValueIDs returns the ids of the variable's values in source order.
func (v VariableDescriptor) ValueIDs() []string {
	out := make([]string, len(v.Values))
	for i, value := range v.Values {
		out[i] = value.ID
	}
	return out
}

// TableMetadata is read-only once fetched.
type TableMetadata struct {
	TableID   string               `json:"table_id"`
	Path      Path                 `json:"path"`
	Title     string               `json:"title"`
	Variables []VariableDescriptor `json:"variables"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
	// Raw holds the metadata response exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Codes returns the variable codes in metadata order.
func (m TableMetadata) Codes() []string {
	out := make([]string, len(m.Variables))
	for i, v := range m.Variables {
		out[i] = v.Code
	}
	return out
}

type Selection struct {
	Code   string   `json:"code"`
	Values []string `json:"values"`
}

const ResponseFormatJSON = "json"

type Query struct {
	Selections     []Selection
	ResponseFormat string
}

type wireSelection struct {
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

type wireQueryItem struct {
	Code      string        `json:"code"`
	Selection wireSelection `json:"selection"`
}

type wireQuery struct {
	Query    []wireQueryItem `json:"query"`
	Response struct {
		Format string `json:"format"`
	} `json:"response"`
}

// MarshalJSON writes the request body expected by the data endpoint.
func (q Query) MarshalJSON() ([]byte, error) {
	wire := wireQuery{Query: make([]wireQueryItem, len(q.Selections))}
	for i, s := range q.Selections {
		values := s.Values
		if values == nil {
			values = []string{}
		}
		wire.Query[i] = wireQueryItem{
			Code:      s.Code,
			Selection: wireSelection{Filter: "item", Values: values},
		}
	}
	wire.Response.Format = q.ResponseFormat
	if wire.Response.Format == "" {
		wire.Response.Format = ResponseFormatJSON
	}
	return json.Marshal(wire)
}

func (q *Query) UnmarshalJSON(data []byte) error {
	var wire wireQuery
	err := json.Unmarshal(data, &wire)
	if err != nil {
		return err
	}
	q.ResponseFormat = wire.Response.Format
	q.Selections = make([]Selection, len(wire.Query))
	for i, item := range wire.Query {
		q.Selections[i] = Selection{Code: item.Code, Values: item.Selection.Values}
	}
	return nil
}

type ColumnDescriptor struct {
	Code string `json:"code"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type Row struct {
	Key    []string `json:"key"`
	Values []string `json:"values"`
}

// TableResult is immutable once fetched.
type TableResult struct {
	TableID  string
	Path     Path
	Metadata TableMetadata
	Query    Query
	Columns  []ColumnDescriptor
	Rows     []Row
	// Raw holds the data response exactly as received.
	Raw json.RawMessage
	// Retries is the number of rate-limited attempts before the successful one.
	Retries int
}

// TableFailure records why a table did not make it into a run.
type TableFailure struct {
	TableID string
	Path    Path
	Stage   string
	Err     error
}

func (f TableFailure) Error() string {
	return fmt.Sprintf("%s (%s): %s: %v", f.TableID, f.Path, f.Stage, f.Err)
}

func (f TableFailure) Unwrap() error {
	return f.Err
}
