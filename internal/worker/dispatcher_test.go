package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Kryak-vak/event-face-service/internal/client"
	"github.com/Kryak-vak/event-face-service/internal/model"
	"github.com/Kryak-vak/event-face-service/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memOutbox models the outbox table with claim-skip semantics: rows claimed
// by one open batch are invisible to concurrent claims, batches commit
// marks atomically, and a failed batch releases its claims with nothing
// committed.
type memOutbox struct {
	mu          sync.Mutex
	msgs        []*memMsg
	markSentErr map[string]error
}

type memMsg struct {
	model.OutboxMessage
	claimed bool
}

type batchKey struct{}

type memBatch struct {
	claimed []*memMsg
	marked  map[string]time.Time
}

func newMemOutbox() *memOutbox {
	return &memOutbox{markSentErr: map[string]error{}}
}

func (s *memOutbox) add(payload model.OutboxPayload) string {
	raw, _ := json.Marshal(payload)
	id := payload.MessageID
	s.msgs = append(s.msgs, &memMsg{OutboxMessage: model.OutboxMessage{
		ID:        id,
		Topic:     "event_registration_created",
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}})
	return id
}

func (s *memOutbox) InBatch(ctx context.Context, fn func(ctx context.Context) error) error {
	b := &memBatch{marked: map[string]time.Time{}}
	err := fn(context.WithValue(ctx, batchKey{}, b))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range b.claimed {
		m.claimed = false
	}
	if err != nil {
		// Rollback: nothing from this batch commits.
		return err
	}
	for _, m := range s.msgs {
		if at, ok := b.marked[m.ID]; ok {
			sentAt := at
			m.Sent = true
			m.SentAt = &sentAt
		}
	}
	return nil
}

func (s *memOutbox) ClaimUnsent(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	b := ctx.Value(batchKey{}).(*memBatch)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OutboxMessage
	for _, m := range s.msgs {
		if len(out) >= limit {
			break
		}
		if m.Sent || m.claimed {
			continue
		}
		m.claimed = true
		b.claimed = append(b.claimed, m)
		out = append(out, m.OutboxMessage)
	}
	return out, nil
}

func (s *memOutbox) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	s.mu.Lock()
	err := s.markSentErr[id]
	s.mu.Unlock()
	if err != nil {
		return err
	}

	b := ctx.Value(batchKey{}).(*memBatch)
	b.marked[id] = sentAt
	return nil
}

func (s *memOutbox) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Sent {
			n++
		}
	}
	return n
}

// memSender records deliveries per notification id.
type memSender struct {
	mu    sync.Mutex
	sends map[string]int
	fail  map[string]error
}

func newMemSender() *memSender {
	return &memSender{sends: map[string]int{}, fail: map[string]error{}}
}

func (s *memSender) Send(ctx context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[n.ID]; err != nil {
		return err
	}
	s.sends[n.ID]++
	return nil
}

func payloadFor(email string) model.OutboxPayload {
	return model.OutboxPayload{
		MessageID:      uuid.New().String(),
		RegistrationID: uuid.New().String(),
		EventID:        uuid.New().String(),
		FullName:       "Test Attendee",
		Email:          email,
		EmailMessage:   "Confirmation code ABCD1234",
	}
}

// runUntil runs the dispatcher until cond holds or the deadline passes.
func runUntil(t *testing.T, d *worker.Dispatcher, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("condition not reached before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestDispatcher_SendsAndMarksEveryMessage(t *testing.T) {
	store := newMemOutbox()
	sender := newMemSender()
	for i := 0; i < 3; i++ {
		store.add(payloadFor(fmt.Sprintf("a%d@example.com", i)))
	}

	d := worker.NewDispatcher(discardLogger(), store, sender, 10, time.Millisecond)
	runUntil(t, d, func() bool { return store.sentCount() == 3 })

	for _, n := range sender.sends {
		assert.Equal(t, 1, n)
	}
}

func TestDispatcher_NeverResendsSentMessages(t *testing.T) {
	store := newMemOutbox()
	sender := newMemSender()
	id := store.add(payloadFor("a@example.com"))

	d := worker.NewDispatcher(discardLogger(), store, sender, 10, time.Millisecond)
	runUntil(t, d, func() bool { return store.sentCount() == 1 })

	// A second dispatcher run against the same store finds nothing to do.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d2 := worker.NewDispatcher(discardLogger(), store, sender, 10, time.Millisecond)
	d2.Run(ctx)

	assert.Equal(t, 1, sender.sends[id])
}

func TestDispatcher_ConcurrentInstancesSendExactlyOnce(t *testing.T) {
	store := newMemOutbox()
	sender := newMemSender()
	for i := 0; i < 10; i++ {
		store.add(payloadFor(fmt.Sprintf("a%d@example.com", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		d := worker.NewDispatcher(discardLogger(), store, sender, 5, time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run(ctx)
		}()
	}

	require.Eventually(t, func() bool { return store.sentCount() == 10 },
		5*time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	require.Len(t, sender.sends, 10)
	for id, n := range sender.sends {
		assert.Equalf(t, 1, n, "message %s sent %d times", id, n)
	}
}

func TestDispatcher_SendFailureAbortsBatch(t *testing.T) {
	store := newMemOutbox()
	sender := newMemSender()
	store.add(payloadFor("ok@example.com"))
	bad := payloadFor("bad@example.com")
	store.add(bad)
	sender.fail[bad.MessageID] = fmt.Errorf("%w: gateway returned 502", client.ErrTransient)

	d := worker.NewDispatcher(discardLogger(), store, sender, 10, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	// The failing message aborted the unit, so even the message that was
	// delivered before it stays unsent and will be retried.
	assert.Equal(t, 0, store.sentCount())
}

func TestDispatcher_MarkSentFailureSkipsMessageOnly(t *testing.T) {
	store := newMemOutbox()
	sender := newMemSender()
	okID := store.add(payloadFor("ok@example.com"))
	stuck := payloadFor("stuck@example.com")
	store.add(stuck)
	store.markSentErr[stuck.MessageID] = errors.New("column dropped")

	d := worker.NewDispatcher(discardLogger(), store, sender, 10, time.Millisecond)
	runUntil(t, d, func() bool { return store.sentCount() == 1 })

	// The healthy message committed; the stuck one stays unsent even though
	// the gateway accepted it, so later passes will deliver it again.
	assert.Equal(t, 1, sender.sends[okID])
	assert.GreaterOrEqual(t, sender.sends[stuck.MessageID], 1)
}

func TestDispatcher_SkipsMalformedPayload(t *testing.T) {
	store := newMemOutbox()
	sender := newMemSender()
	store.msgs = append(store.msgs, &memMsg{OutboxMessage: model.OutboxMessage{
		ID:        uuid.New().String(),
		Topic:     "event_registration_created",
		Payload:   []byte("{not json"),
		CreatedAt: time.Now().UTC(),
	}})
	okID := store.add(payloadFor("ok@example.com"))

	d := worker.NewDispatcher(discardLogger(), store, sender, 10, time.Millisecond)
	runUntil(t, d, func() bool { return store.sentCount() == 1 })

	assert.Equal(t, 1, sender.sends[okID])
}
