package harvest

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	report_data_fetch = "data.fetch"
	report_data_rows  = "data.rows"
)

type wireData struct {
	Columns []ColumnDescriptor `json:"columns"`
	Data    []Row              `json:"data"`
}

// FetchData posts query to the table at path. Rate limited requests are
// retried up to the client's retry bound, every other failure (413
// included) is returned as is.
func (c *Client) FetchData(ctx context.Context, path Path, query Query) (TableResult, error) {
	res, err := c.post(ctx, path, query)
	if err != nil {
		c.tel.ReportWarning(report_data_fetch, err, path.String(), res.retries)
		return TableResult{Retries: res.retries}, fmt.Errorf("fetch data %s: %w", path, err)
	}

	if kind := jsonKind(res.body); kind != "object" {
		return TableResult{Retries: res.retries}, &ShapeError{Path: path, Observed: kind}
	}
	var wire wireData
	err = json.Unmarshal(res.body, &wire)
	if err != nil {
		return TableResult{Retries: res.retries}, &ShapeError{Path: path, Observed: "object", Detail: err.Error()}
	}

	result := TableResult{
		Path:    path,
		Query:   query,
		Columns: wire.Columns,
		Rows:    wire.Data,
		Raw:     json.RawMessage(res.body),
		Retries: res.retries,
	}
	if len(path) > 0 {
		result.TableID = path[len(path)-1]
	}
	c.tel.ReportCount(report_data_rows, int64(len(result.Rows)))
	return result, nil
}
