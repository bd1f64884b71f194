package mevshare

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flashbots/mev-share-client-go/metrics"
	"go.uber.org/zap"
)

const maxStreamLineSize = 1024 * 1024

var errStreamEnded = errors.New("event stream ended")

// EventHandler is called for every classified event of the kind it was registered for.
// ctx is cancelled when the subscription is cancelled.
type EventHandler func(ctx context.Context, ev Event)

// EventStream reads the server-sent events feed of pending transaction and bundle hints.
type EventStream struct {
	log *zap.Logger

	url        string
	client     *http.Client
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	handlers map[EventKind][]EventHandler
}

type EventStreamOption func(*EventStream)

// WithStreamHTTPClient sets the client used for the stream, it must not have a total request timeout.
func WithStreamHTTPClient(client *http.Client) EventStreamOption {
	return func(s *EventStream) {
		s.client = client
	}
}

// WithReconnectBackOff sets the reconnect policy, every subscription gets a fresh BackOff.
func WithReconnectBackOff(newBackOff func() backoff.BackOff) EventStreamOption {
	return func(s *EventStream) {
		s.newBackOff = newBackOff
	}
}

func defaultReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func NewEventStream(log *zap.Logger, url string, opts ...EventStreamOption) *EventStream {
	s := &EventStream{
		log:        log.Named("stream"),
		url:        url,
		client:     &http.Client{},
		newBackOff: defaultReconnectBackOff,
		handlers:   make(map[EventKind][]EventHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// On registers handler for kind. Unknown kinds are rejected immediately.
// Handlers registered after Subscribe only apply to later subscriptions.
func (s *EventStream) On(kind string, handler EventHandler) error {
	k, err := ParseEventKind(kind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.handlers[k] = append(s.handlers[k], handler)
	s.mu.Unlock()
	return nil
}

func (s *EventStream) OnTransaction(handler func(ctx context.Context, tx *PendingTransaction)) {
	_ = s.On(string(TransactionEvent), func(ctx context.Context, ev Event) {
		handler(ctx, ev.(*PendingTransaction)) //nolint:forcetypeassert
	})
}

func (s *EventStream) OnBundle(handler func(ctx context.Context, bundle *PendingBundle)) {
	_ = s.On(string(BundleEvent), func(ctx context.Context, ev Event) {
		handler(ctx, ev.(*PendingBundle)) //nolint:forcetypeassert
	})
}

func (s *EventStream) snapshotHandlers() map[EventKind][]EventHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	handlers := make(map[EventKind][]EventHandler, len(s.handlers))
	for k, v := range s.handlers {
		handlers[k] = append([]EventHandler(nil), v...)
	}
	return handlers
}

// Subscribe opens the stream in the background and dispatches events until the
// subscription is cancelled, ctx is done or the relay refuses the connection.
func (s *EventStream) Subscribe(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	go s.run(ctx, sub, s.snapshotHandlers())
	return sub
}

func (s *EventStream) run(ctx context.Context, sub *Subscription, handlers map[EventKind][]EventHandler) {
	defer close(sub.done)

	b := backoff.WithContext(s.newBackOff(), ctx)
	operation := func() error {
		err := s.consume(ctx, sub, handlers, b)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.IncStreamReconnects()
		s.log.Warn("Event stream disconnected, reconnecting", zap.Error(err), zap.Duration("in", next))
	}

	err := backoff.RetryNotify(operation, b, notify)
	if ctx.Err() != nil {
		return
	}
	s.log.Error("Event stream closed", zap.Error(err))
	sub.setErr(newTransportError(err))
}

func (s *EventStream) consume(ctx context.Context, sub *Subscription, handlers map[EventKind][]EventHandler, b backoff.BackOff) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return err
		}
		return backoff.Permanent(err)
	}
	b.Reset()
	s.log.Debug("Event stream connected", zap.String("url", s.url))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			if data.Len() > 0 {
				s.dispatch(ctx, sub, handlers, data.Bytes())
				data.Reset()
			}
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			// comments, event names, ids and retry hints are not used
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if data.Len() > 0 {
			data.WriteByte('\n')
		}
		data.Write(value)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errStreamEnded
}

func (s *EventStream) dispatch(ctx context.Context, sub *Subscription, handlers map[EventKind][]EventHandler, data []byte) {
	var hint Hint
	if err := json.Unmarshal(data, &hint); err != nil {
		metrics.IncStreamMalformedEvents()
		s.log.Warn("Skipping malformed stream event", zap.Error(err), zap.ByteString("data", data))
		return
	}

	ev := ClassifyEvent(&hint)
	metrics.IncStreamEvent(string(ev.Kind()))
	for _, handler := range handlers[ev.Kind()] {
		if !sub.beginInvocation(ctx) {
			return
		}
		sub.invoke(ctx, handler, ev)
	}
}

// Subscription is a running stream subscription.
type Subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	err    error
	// starting is set between the closed check of an invocation and the handler call
	starting bool
}

// Cancel stops the subscription. Once it returns no new handler invocation begins:
// an invocation that already passed its closed check is let through first.
// It does not wait for a running handler, so it is safe to call from inside one.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		for s.starting {
			s.cond.Wait()
		}
		s.mu.Unlock()
		s.cancel()
	})
}

// Done is closed when the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription stopped on its own, it is nil after Cancel.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) beginInvocation(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil {
		return false
	}
	s.starting = true
	return true
}

// invoke hands control to handler, a Cancel racing with beginInvocation returns only after this point.
func (s *Subscription) invoke(ctx context.Context, handler EventHandler, ev Event) {
	s.mu.Lock()
	s.starting = false
	s.cond.Broadcast()
	s.mu.Unlock()
	handler(ctx, ev)
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
