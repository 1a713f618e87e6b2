package feed

import (
	"context"
	"sync"
	"time"

	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/obs"
)

// TransactionEvent announces a transaction newly observed by the read model.
type TransactionEvent struct {
	Sequence       uint64                   `json:"sequence"`
	Reference      string                   `json:"reference"`
	Type           ledger.TransactionType   `json:"type"`
	Status         ledger.TransactionStatus `json:"status"`
	Amount         ledger.Money             `json:"amount"`
	PayerAccountID string                   `json:"payer_account_id"`
	PayeeAccountID string                   `json:"payee_account_id"`
	PaymentMethod  string                   `json:"payment_method"`
	Location       string                   `json:"location,omitempty"`
	Timestamp      time.Time                `json:"timestamp"`
}

func EventFor(rec ledger.TransactionRecord) TransactionEvent {
	return TransactionEvent{
		Sequence:       rec.Sequence,
		Reference:      rec.Reference,
		Type:           rec.Type,
		Status:         rec.Status,
		Amount:         rec.NominalAmount,
		PayerAccountID: rec.PayerAccountID,
		PayeeAccountID: rec.PayeeAccountID,
		PaymentMethod:  rec.PaymentMethod,
		Location:       rec.Location,
		Timestamp:      rec.CreatedAt,
	}
}

// Stream fan-outs transaction events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan TransactionEvent
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan TransactionEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan TransactionEvent {
	ch := make(chan TransactionEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Subscribers reports the number of active subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt TransactionEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Source produces synthetic transactions for the demo feed.
type Source interface {
	TransactionAt(t time.Time) ledger.TransactionRecord
}

// Sink stores transactions, returning the ones it had not seen before.
type Sink interface {
	Add(ctx context.Context, recs ...ledger.TransactionRecord) ([]ledger.TransactionRecord, error)
}

// StartDemo appends a generated transaction to sink every interval and
// publishes it, until the returned stop function is called.
func (s *Stream) StartDemo(interval time.Duration, src Source, sink Sink, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.emit(ctx, src.TransactionAt(now()), sink); err != nil {
					obs.Logger().Error().Err(err).Msg("demo_feed_append_failed")
				}
			}
		}
	}()
	return cancel
}

func (s *Stream) emit(ctx context.Context, rec ledger.TransactionRecord, sink Sink) error {
	added, err := sink.Add(ctx, rec)
	if err != nil {
		return err
	}
	for _, a := range added {
		s.Publish(EventFor(a))
	}
	return nil
}
