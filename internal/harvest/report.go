package harvest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	reportTimeLayout = "2006-01-02 15:04:05"
	previewRows      = 20

	payloadBegin = "FULL JSON PAYLOAD FOR THIS TABLE:"
	payloadEnd   = "END OF JSON PAYLOAD"
)

var (
	thickRule = strings.Repeat("=", 100)
	thinRule  = strings.Repeat("-", 100)
)

type ReportHeader struct {
	Group       string
	GeneratedAt time.Time
}

// countingWriter counts what reaches the underlying writer and keeps the
// first error, later writes become no-ops.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func (c *countingWriter) line(format string, args ...any) {
	if c.err != nil {
		return
	}
	fmt.Fprintf(c, format, args...)
	c.Write([]byte{'\n'})
}

// WriteReport writes the header followed by one section per result, in the
// given order. Each section ends with the data response embedded verbatim,
// ReadPayloads extracts it again.
func WriteReport(w io.Writer, header ReportHeader, results []TableResult) (int64, error) {
	buffered := bufio.NewWriter(w)
	out := &countingWriter{w: buffered}

	out.line("%s", thickRule)
	out.line("DATA FROM TABLE GROUP: %s", header.Group)
	out.line("Generated: %s", header.GeneratedAt.Format(reportTimeLayout))
	out.line("Number of tables: %d", len(results))
	out.line("%s", thickRule)

	for _, result := range results {
		writeTableSection(out, result)
	}

	if out.err == nil {
		out.err = buffered.Flush()
	}
	if out.err != nil {
		return out.n, &IOError{Err: out.err}
	}
	return out.n, nil
}

func writeTableSection(out *countingWriter, result TableResult) {
	out.line("")
	out.line("%s", thickRule)
	out.line("TABLE: %s", result.TableID)
	if result.Metadata.Title != "" {
		out.line("Title: %s", result.Metadata.Title)
	}
	out.line("Path: %s", result.Path)
	out.line("%s", thickRule)
	out.line("")

	out.line("Number of columns: %d", len(result.Columns))
	out.line("Columns:")
	for _, col := range result.Columns {
		out.line("  - %s: %s", col.Code, col.Text)
	}
	out.line("")

	out.line("Number of rows: %s", humanize.Comma(int64(len(result.Rows))))
	out.line("")
	out.line("DATA (first %d rows):", previewRows)
	out.line("%s", thinRule)
	for i, row := range result.Rows {
		if i == previewRows {
			out.line("  ... (%s more rows)", humanize.Comma(int64(len(result.Rows)-previewRows)))
			break
		}
		out.line("  %s => [%s]", strings.Join(row.Key, " | "), strings.Join(row.Values, ", "))
	}

	out.line("")
	out.line("%s", thinRule)
	out.line(payloadBegin)
	out.line("%s", thinRule)
	if out.err == nil {
		out.Write(result.Raw)
	}
	out.line("")
	out.line(payloadEnd)
}

// WriteReportFile creates (or truncates) path and writes the report to it.
// A failed write leaves whatever was written so far in place.
func WriteReportFile(path string, header ReportHeader, results []TableResult) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, &IOError{Path: path, Err: err}
	}

	n, err := WriteReport(f, header, results)
	closeErr := f.Close()
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return n, err
	}
	if closeErr != nil {
		return n, &IOError{Path: path, Err: closeErr}
	}
	return n, nil
}

// ReadPayloads returns the embedded data payloads of a report, in order,
// exactly as they were written.
func ReadPayloads(r io.Reader) ([]json.RawMessage, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	begin := []byte(payloadBegin + "\n" + thinRule + "\n")
	end := []byte("\n" + payloadEnd + "\n")

	var payloads []json.RawMessage
	for {
		start := bytes.Index(content, begin)
		if start < 0 {
			return payloads, nil
		}
		content = content[start+len(begin):]

		stop := bytes.Index(content, end)
		if stop < 0 {
			return payloads, fmt.Errorf("payload %d is not terminated", len(payloads)+1)
		}
		payloads = append(payloads, json.RawMessage(bytes.Clone(content[:stop])))
		content = content[stop+len(end):]
	}
}

// WriteMetadataFile writes the metadata response as indented JSON. The
// indentation is the only difference from the bytes that were received.
func WriteMetadataFile(path string, meta TableMetadata) error {
	var buf bytes.Buffer
	if len(meta.Raw) > 0 {
		err := json.Indent(&buf, meta.Raw, "", "  ")
		if err != nil {
			return fmt.Errorf("indent metadata of %s: %w", meta.TableID, err)
		}
	} else {
		encoded, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", meta.TableID, err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte('\n')

	err := os.WriteFile(path, buf.Bytes(), 0644)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// WriteCatalog renders walked nodes as a tree, indenting by depth. Leaves
// are marked with `*`, levels with `-`.
func WriteCatalog(w io.Writer, nodes []CatalogNode) error {
	out := &countingWriter{w: w}
	for _, node := range nodes {
		indent := strings.Repeat("  ", max(node.Depth-1, 0))
		marker := "-"
		if node.Leaf {
			marker = "*"
		}
		out.line("%s%s %s: %s", indent, marker, node.ID, node.Text)
	}
	if out.err != nil {
		return &IOError{Err: out.err}
	}
	return nil
}
