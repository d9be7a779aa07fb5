package trace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/parley/pkg/natsx"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// ErrNotFound is returned when a sink has no record for a debug id.
var ErrNotFound = errors.New("trace not found")

// Sink receives finished traces. Accumulators log Store errors and move on.
type Sink interface {
	Store(ctx context.Context, debugID string, meta Metadata, trace *ExchangeTrace) error
}

// Loader reads stored records back.
type Loader interface {
	Load(debugID string) (Record, error)
}

var (
	_ Loader = &MemorySink{}
	_ Loader = &FileSink{}
)

// MemorySink keeps records in process.
type MemorySink struct {
	records *haxmap.Map[string, Record]
}

func NewMemorySink() *MemorySink {
	return &MemorySink{records: haxmap.New[string, Record]()}
}

func (m *MemorySink) Store(_ context.Context, debugID string, meta Metadata, trace *ExchangeTrace) error {
	m.records.Set(debugID, Record{Metadata: meta, Trace: trace})
	return nil
}

// Get returns the record stored under debugID.
func (m *MemorySink) Get(debugID string) (Record, bool) {
	return m.records.Get(debugID)
}

// Load returns the record stored under debugID or ErrNotFound.
func (m *MemorySink) Load(debugID string) (Record, error) {
	rec, ok := m.records.Get(debugID)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, debugID)
	}
	return rec, nil
}

// Len returns the number of stored records.
func (m *MemorySink) Len() int {
	return int(m.records.Len())
}

// FileSink writes one JSON document per trace into a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates dir when needed.
func NewFileSink(dir string) (*FileSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("trace directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (f *FileSink) path(debugID string) (string, error) {
	if debugID == "" || debugID != filepath.Base(debugID) || strings.HasPrefix(debugID, ".") {
		return "", fmt.Errorf("invalid debug id %q", debugID)
	}
	return filepath.Join(f.dir, debugID+".json"), nil
}

func (f *FileSink) Store(_ context.Context, debugID string, meta Metadata, trace *ExchangeTrace) error {
	path, err := f.path(debugID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(Record{Metadata: meta, Trace: trace}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

// Load reads the record stored under debugID.
func (f *FileSink) Load(debugID string) (Record, error) {
	path, err := f.path(debugID)
	if err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, debugID)
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode trace %s: %w", debugID, err)
	}
	return rec, nil
}

// Publisher is the part of *nats.Conn the NATS sink uses.
type Publisher interface {
	PublishMsg(*nats.Msg) error
}

// DefaultSubjectPrefix prefixes the subjects NATSSink publishes on.
const DefaultSubjectPrefix = "parley.traces"

// NATSSink publishes every record on <prefix>.<debug id>.
type NATSSink struct {
	conn   Publisher
	prefix string
}

// NewNATSSink creates a sink publishing through conn. An empty prefix
// selects DefaultSubjectPrefix.
func NewNATSSink(conn Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

func (n *NATSSink) Store(_ context.Context, debugID string, meta Metadata, trace *ExchangeTrace) error {
	data, err := json.Marshal(Record{Metadata: meta, Trace: trace})
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	msg := nats.NewMsg(natsx.Subject(n.prefix, debugID))
	msg.Header.Set(natsx.HeaderDebugID, debugID)
	msg.Header.Set(natsx.HeaderProvider, meta.Provider)
	msg.Data = data
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish trace %s: %w", debugID, err)
	}
	return nil
}
