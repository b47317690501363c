package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/harberger/x/ledger"
)

var _ Manager = (*fileManager)(nil)

// ErrClosed is returned by a file journal after Close.
var ErrClosed = errors.New("journal closed")

// OpenFile opens (creating if needed) an append-only journal at path and
// loads its frames. A partial trailing frame left by a crash is cut off.
func OpenFile(path string, log zerolog.Logger) (Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	m, err := openJournal(f, log.With().Str("path", path).Logger())
	if err != nil {
		return nil, err
	}
	return m, nil
}

// journalFile is the subset of *os.File the journal needs.
type journalFile interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
	Sync() error
	Close() error
}

func openJournal(f journalFile, log zerolog.Logger) (*fileManager, error) {
	m := &fileManager{
		mem:   newMemoryManager(),
		codec: NewCodec(DefaultMaxFrameSize),
		file:  f,
		log:   log.With().Str("component", "event-journal").Logger(),
	}
	if err := m.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return m, nil
}

type fileManager struct {
	mu    sync.Mutex
	mem   *memoryManager
	codec *Codec
	file  journalFile
	// size is the end of the last fully synced frame.
	size   int64
	closed bool
	// broken is set when a failed append could not be rolled back.
	broken error
	log    zerolog.Logger
}

func (m *fileManager) load() error {
	r := bufio.NewReader(m.file)
	var (
		offset int64
		loaded []ledger.Event
	)
	for {
		frame := &structpb.Struct{}
		n, err := m.codec.DecodeStream(r, frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			m.log.Warn().Int64("offset", offset).Msg("Truncating partial trailing frame")
			if err := m.file.Truncate(offset); err != nil {
				return fmt.Errorf("truncate journal: %w", err)
			}
			break
		}
		if err != nil {
			return fmt.Errorf("decode frame at offset %d: %w", offset, err)
		}
		ev, err := fromFrame(frame)
		if err != nil {
			return fmt.Errorf("frame at offset %d: %w", offset, err)
		}
		loaded = append(loaded, ev)
		offset += int64(n)
	}

	if _, err := m.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek journal: %w", err)
	}
	m.size = offset
	m.mem.append(loaded)

	m.log.Info().Int("events", len(loaded)).Uint64("last_seq", m.mem.LastSeq()).Msg("Event journal loaded")
	return nil
}

// Publish appends events to the file and fsyncs before exposing them to readers.
func (m *fileManager) Publish(ctx context.Context, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}

	var buf []byte
	for _, ev := range events {
		frame, err := toFrame(ev)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		data, err := m.codec.Encode(frame)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		buf = append(buf, data...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.broken != nil {
		return m.broken
	}
	if _, err := m.file.Write(buf); err != nil {
		return m.rollback(fmt.Errorf("append journal: %w", err))
	}
	if err := m.file.Sync(); err != nil {
		return m.rollback(fmt.Errorf("sync journal: %w", err))
	}
	m.size += int64(len(buf))
	return m.mem.Publish(ctx, events)
}

// rollback cuts the file back to the last good frame so a later append never
// lands behind a torn one. If that fails the journal refuses further writes.
func (m *fileManager) rollback(cause error) error {
	err := m.file.Truncate(m.size)
	if err == nil {
		_, err = m.file.Seek(m.size, io.SeekStart)
	}
	if err != nil {
		m.broken = fmt.Errorf("journal unusable after failed append: %w", errors.Join(cause, err))
		m.log.Error().Err(m.broken).Int64("offset", m.size).Msg("Journal rollback failed")
		return m.broken
	}
	m.log.Warn().Err(cause).Int64("offset", m.size).Msg("Rolled back failed journal append")
	return cause
}

func (m *fileManager) ReadEntries(ctx context.Context, since uint64) ([]ledger.Event, error) {
	return m.mem.ReadEntries(ctx, since)
}

func (m *fileManager) LastSeq() uint64 {
	return m.mem.LastSeq()
}

func (m *fileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.file.Close()
}
