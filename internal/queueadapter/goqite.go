package queueadapter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maragu.dev/goqite"

	_ "modernc.org/sqlite"

	"github.com/relaycore/bulkmailer/internal/domain"
)

// GoqiteConfig configures the local/dev Queue Adapter backend.
type GoqiteConfig struct {
	DSN               string // e.g. "file:bulkmailer.db?_pragma=busy_timeout(5000)"
	QueueName         string
	DeadLetterName    string
	VisibilityTimeout time.Duration
}

// GoqiteAdapter implements Adapter against maragu.dev/goqite, the teacher's
// own embedded-queue library, backed here by modernc.org/sqlite. Intended
// for local development and tests, where standing up SQS is overkill.
type GoqiteAdapter struct {
	db         *sql.DB
	queue      *goqite.Queue
	queueName  string
	deadLetter *goqite.Queue
	visibility time.Duration
}

// NewGoqiteAdapter opens the backing database and constructs both the main
// and dead-letter goqite queues.
func NewGoqiteAdapter(cfg GoqiteConfig) (*GoqiteAdapter, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open goqite database: %w", err)
	}

	if err := goqite.Setup(context.Background(), db); err != nil {
		return nil, fmt.Errorf("goqite setup: %w", err)
	}

	visibility := cfg.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}

	return &GoqiteAdapter{
		db:         db,
		queue:      goqite.New(goqite.NewOpts{DB: db, Name: cfg.QueueName}),
		queueName:  cfg.QueueName,
		deadLetter: goqite.New(goqite.NewOpts{DB: db, Name: cfg.DeadLetterName}),
		visibility: visibility,
	}, nil
}

// Close releases the backing database connection.
func (a *GoqiteAdapter) Close() error {
	return a.db.Close()
}

func (a *GoqiteAdapter) Fetch(ctx context.Context, max int, waitSeconds int) ([]Message, error) {
	max = clampFetch(max)
	waitSeconds = clampWait(waitSeconds)

	deadline := time.Now().Add(time.Duration(waitSeconds) * time.Second)
	var messages []Message

	for len(messages) < max {
		m, err := a.queue.Receive(ctx)
		if err != nil {
			return messages, fmt.Errorf("goqite receive: %w", err)
		}
		if m == nil {
			if time.Now().After(deadline) {
				break
			}
			select {
			case <-ctx.Done():
				return messages, ctx.Err()
			case <-time.After(200 * time.Millisecond):
				continue
			}
		}

		messages = append(messages, Message{
			Body:           string(m.Body),
			ReceiptToken:   string(m.ID),
			QueueMessageID: string(m.ID),
		})
	}
	return messages, nil
}

func (a *GoqiteAdapter) Ack(ctx context.Context, receiptToken string) error {
	if err := a.queue.Delete(ctx, goqite.ID(receiptToken)); err != nil {
		return fmt.Errorf("goqite delete: %w", err)
	}
	return nil
}

// DeadLetter enqueues body on the dead-letter queue. goqite messages carry
// only a body, so attributes are not forwarded.
func (a *GoqiteAdapter) DeadLetter(ctx context.Context, body string, attributes map[string]string) error {
	_, err := a.deadLetter.Send(ctx, goqite.Message{Body: []byte(body)})
	if err != nil {
		return fmt.Errorf("goqite dead-letter send: %w", err)
	}
	return nil
}

func (a *GoqiteAdapter) Parse(msg Message) (*domain.SendRequest, error) {
	return parseMessage(msg)
}

// QueueDepth counts undelivered rows in goqite's backing table for the main
// queue. Grounded on goqite's published schema (table goqite_messages,
// keyed by queue name).
func (a *GoqiteAdapter) QueueDepth(ctx context.Context) (int64, error) {
	row := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM goqite_messages WHERE queue = ?`, a.queueName)
	var depth int64
	if err := row.Scan(&depth); err != nil {
		return 0, fmt.Errorf("goqite depth query: %w", err)
	}
	return depth, nil
}
