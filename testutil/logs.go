package testutil

import (
	"bufio"
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// LogCapture collects JSON log records written through the default slog logger.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// CaptureLogs routes slog.Default into a JSON buffer until the test ends.
func CaptureLogs(t *testing.T) *LogCapture {
	t.Helper()
	c := &LogCapture{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return c
}

// Records decodes every record written so far.
func (c *LogCapture) Records(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	data := append([]byte(nil), c.buf.Bytes()...)
	c.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("undecodable log line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

// WithKind returns the records whose "kind" attribute equals kind.
func (c *LogCapture) WithKind(t *testing.T, kind string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, rec := range c.Records(t) {
		if rec["kind"] == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Kinds returns the "kind" attribute of every record that has one, in order.
func (c *LogCapture) Kinds(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, rec := range c.Records(t) {
		if k, ok := rec["kind"].(string); ok {
			out = append(out, k)
		}
	}
	return out
}
