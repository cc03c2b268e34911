package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/faceclock/internal/models"
)

// Sink persists one audit entry. The Postgres store satisfies this.
type Sink interface {
	AppendLog(ctx context.Context, entry models.LogEntry) error
}

// Logger writes the append-only attendance log without ever blocking or
// failing the caller: entries are queued to a background writer, and a
// failed insert is reported to slog and dropped. An attendance transition
// must go through even when the audit trail cannot keep up.
type Logger struct {
	sink    Sink
	logger  *slog.Logger
	entries chan models.LogEntry
	done    chan struct{}
}

const queueSize = 256

// writeTimeout bounds one sink insert so a stuck database cannot
// stall the drain loop forever.
const writeTimeout = 5 * time.Second

func NewLogger(sink Sink, logger *slog.Logger) *Logger {
	l := &Logger{
		sink:    sink,
		logger:  logger.With("component", "audit"),
		entries: make(chan models.LogEntry, queueSize),
		done:    make(chan struct{}),
	}
	go l.drain()
	return l
}

// Record queues one entry. If the queue is full the entry is logged and
// dropped rather than blocking the recognition path.
func (l *Logger) Record(entry models.LogEntry) {
	select {
	case l.entries <- entry:
	default:
		l.logger.Warn("audit queue full, dropping entry",
			"identity_id", entry.IdentityID,
			"action", entry.Action,
			"outcome", entry.Outcome)
	}
}

// Close stops accepting entries and waits for the queue to flush.
func (l *Logger) Close() {
	close(l.entries)
	<-l.done
}

func (l *Logger) drain() {
	defer close(l.done)
	for entry := range l.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.sink.AppendLog(ctx, entry); err != nil {
			l.logger.Error("append audit entry",
				"error", err,
				"identity_id", entry.IdentityID,
				"action", entry.Action,
				"outcome", entry.Outcome)
		}
		cancel()
	}
}
