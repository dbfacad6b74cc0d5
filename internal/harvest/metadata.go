package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

const report_metadata_fetch = "metadata.fetch"

const listingPreviewSize = 5

type wireMetadata struct {
	Title     string               `json:"title"`
	Variables []VariableDescriptor `json:"variables"`
	Updated   string               `json:"updated"`
}

// FetchMetadata retrieves the variable descriptors of the table at path.
// If path points at a hierarchy level instead of a table the remote answers
// with a listing, which is reported as an UnexpectedShape error.
func (c *Client) FetchMetadata(ctx context.Context, path Path) (TableMetadata, error) {
	res, err := c.get(ctx, path)
	if err != nil {
		c.tel.ReportWarning(report_metadata_fetch, err, path.String())
		return TableMetadata{}, fmt.Errorf("fetch metadata %s: %w", path, err)
	}
	return parseMetadata(path, res.body)
}

func parseMetadata(path Path, body []byte) (TableMetadata, error) {
	switch kind := jsonKind(body); kind {
	case "object":
	case "array":
		var items []listingItem
		err := json.Unmarshal(body, &items)
		if err != nil {
			return TableMetadata{}, &ShapeError{Path: path, Observed: "array", Detail: err.Error()}
		}
		return TableMetadata{}, &ShapeError{
			Path:     path,
			Observed: "listing",
			Detail:   listingPreview(items),
		}
	default:
		return TableMetadata{}, &ShapeError{Path: path, Observed: kind}
	}

	var fields map[string]json.RawMessage
	err := json.Unmarshal(body, &fields)
	if err != nil {
		return TableMetadata{}, &ShapeError{Path: path, Observed: "object", Detail: err.Error()}
	}
	if _, ok := fields["variables"]; !ok {
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		return TableMetadata{}, &ShapeError{
			Path:     path,
			Observed: "object",
			Detail:   fmt.Sprintf("missing variables, has %v", keys),
		}
	}

	var wire wireMetadata
	err = json.Unmarshal(body, &wire)
	if err != nil {
		return TableMetadata{}, &ShapeError{Path: path, Observed: "object", Detail: err.Error()}
	}

	meta := TableMetadata{
		Path:      path,
		Title:     wire.Title,
		Variables: wire.Variables,
		Raw:       json.RawMessage(body),
	}
	if len(path) > 0 {
		meta.TableID = path[len(path)-1]
	}
	if updated, ok := parseUpdated(wire.Updated); ok {
		meta.UpdatedAt = &updated
	}
	return meta, nil
}

func listingPreview(items []listingItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d items", len(items))
	for i, item := range items {
		if i == listingPreviewSize {
			sb.WriteString(", ...")
			break
		}
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s (%s)", item.ID, item.Text)
	}
	return sb.String()
}

var updatedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseUpdated(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range updatedLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
