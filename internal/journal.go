package internal

import (
	"context"
	"log"
	"sync"
	"time"

	"livecount/internal/presence"
	"livecount/internal/storage"
)

const (
	journalQueueSize    = 256
	journalWriteTimeout = 5 * time.Second
)

type journalEntry struct {
	write func(ctx context.Context, store *storage.Store) error
	label string
}

// Journal appends presence activity to the SQLite store from its own
// goroutine so the hub loop never waits on disk. Entries are dropped, with a
// log line, when the queue is full.
type Journal struct {
	presence.Discard

	store *storage.Store
	queue chan journalEntry
	now   func() time.Time
	wg    sync.WaitGroup
	once  sync.Once
}

func NewJournal(store *storage.Store) *Journal {
	journal := &Journal{
		store: store,
		queue: make(chan journalEntry, journalQueueSize),
		now:   time.Now,
	}
	journal.wg.Add(1)
	go journal.run()
	return journal
}

func (j *Journal) run() {
	defer j.wg.Done()
	for entry := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		if err := entry.write(ctx, j.store); err != nil {
			log.Printf("journal %s: %v", entry.label, err)
		}
		cancel()
	}
}

// Close flushes queued entries and stops the writer. The store itself is
// left open.
func (j *Journal) Close() {
	j.once.Do(func() {
		close(j.queue)
	})
	j.wg.Wait()
}

func (j *Journal) enqueue(label string, write func(ctx context.Context, store *storage.Store) error) {
	select {
	case j.queue <- journalEntry{write: write, label: label}:
	default:
		log.Printf("journal queue full, dropping %s", label)
	}
}

func (j *Journal) Connected(record presence.ClientRecord) {
	j.enqueue("open session", func(ctx context.Context, store *storage.Store) error {
		return store.OpenSession(ctx, record.Token, record.ID, record.ConnectedAt)
	})
}

func (j *Journal) Disconnected(record presence.ClientRecord) {
	at := j.now()
	j.enqueue("close session", func(ctx context.Context, store *storage.Store) error {
		return store.CloseSession(ctx, record.Token, at)
	})
}

func (j *Journal) Reset() {
	j.recordEvent(storage.EventSystemReset, 0)
}

func (j *Journal) CountdownStarted(seconds int) {
	j.recordEvent(storage.EventCountdownStart, seconds)
}

func (j *Journal) CountdownCancelled() {
	j.recordEvent(storage.EventCountdownCancel, 0)
}

func (j *Journal) recordEvent(kind string, value int) {
	at := j.now()
	j.enqueue(kind, func(ctx context.Context, store *storage.Store) error {
		return store.RecordEvent(ctx, kind, value, at)
	})
}
