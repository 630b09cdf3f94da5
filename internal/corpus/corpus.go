// Package corpus persists corpus records as header-less four-column CSV and
// reads the title lists that seed an ingestion job.
package corpus

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"wikirag/internal/domain"
)

const recordFields = 4

// Write encodes records as identifier,url,title,text rows with no header.
func Write(w io.Writer, records []domain.CorpusRecord) error {
	cw := csv.NewWriter(w)
	for _, r := range records {
		if err := cw.Write([]string{r.ID, r.URL, r.Title, r.Text}); err != nil {
			return fmt.Errorf("write record %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read decodes rows produced by Write. Field bytes come back exactly as
// written, including \r\n inside quoted fields.
func Read(r io.Reader) ([]domain.CorpusRecord, error) {
	cr := newReader(r)
	cr.FieldsPerRecord = recordFields
	var out []domain.CorpusRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
		out = append(out, domain.CorpusRecord{
			ID:    unescape(row[0]),
			URL:   unescape(row[1]),
			Title: unescape(row[2]),
			Text:  unescape(row[3]),
		})
	}
}

// escapeByte introduces an escaped byte in the stream handed to csv.Reader.
const escapeByte = 0

// crGuard hides carriage returns inside quoted fields from csv.Reader, which
// folds a quoted \r\n into \n. A quoted \r becomes NUL 'r' and a literal
// NUL becomes NUL NUL; unescape reverses both. Row terminators outside quotes
// are left alone.
type crGuard struct {
	src     *bufio.Reader
	quoted  bool
	pending []byte
}

func (g *crGuard) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(g.pending) > 0 {
			p[n] = g.pending[0]
			g.pending = g.pending[1:]
			n++
			continue
		}
		if n > 0 && g.src.Buffered() == 0 {
			return n, nil
		}
		b, err := g.src.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		switch {
		case b == '"':
			g.quoted = !g.quoted
		case b == escapeByte:
			g.pending = append(g.pending, escapeByte)
		case b == '\r' && g.quoted:
			b = escapeByte
			g.pending = append(g.pending, 'r')
		}
		p[n] = b
		n++
	}
	return n, nil
}

func newReader(r io.Reader) *csv.Reader {
	return csv.NewReader(&crGuard{src: bufio.NewReader(r)})
}

func unescape(field string) string {
	if strings.IndexByte(field, escapeByte) < 0 {
		return field
	}
	var b strings.Builder
	b.Grow(len(field))
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c == escapeByte && i+1 < len(field) {
			i++
			if field[i] == 'r' {
				c = '\r'
			} else {
				c = field[i]
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Save writes records to path, creating parent directories. The file is
// replaced atomically.
func Save(path string, records []domain.CorpusRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".corpus-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads all records from path.
func Load(path string) ([]domain.CorpusRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// ReadTitles reads identifiers from column of a CSV that starts with a header
// row. Blank cells are skipped.
func ReadTitles(r io.Reader, column int) ([]domain.DocumentID, error) {
	cr := newReader(r)
	cr.FieldsPerRecord = -1
	header := true
	var out []domain.DocumentID
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read titles: %w", err)
		}
		if header {
			header = false
			continue
		}
		if column >= len(row) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("read titles: line %d has %d columns, want column %d", line, len(row), column)
		}
		if title := strings.TrimSpace(unescape(row[column])); title != "" {
			out = append(out, domain.DocumentID(title))
		}
	}
}

// LoadTitles reads identifiers from the CSV file at path.
func LoadTitles(path string, column int) ([]domain.DocumentID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTitles(f, column)
}

// SaveTitles writes ids in the layout ReadTitles expects: a header row, then
// one title per row in column. It is used to re-run a failed subset.
func SaveTitles(path string, ids []domain.DocumentID, column int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	cw := csv.NewWriter(&b)
	row := make([]string, column+1)
	row[column] = "title"
	if err := cw.Write(row); err != nil {
		return err
	}
	for _, id := range ids {
		row = make([]string, column+1)
		row[column] = string(id)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
