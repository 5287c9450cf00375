// Package webhook posts workflow events to external HTTP endpoints, signed
// with HMAC-SHA256. Delivery is asynchronous with bounded retries so a slow
// receiver never holds up the request that produced the event.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/events"
)

const (
	SignatureHeader = "X-Telecare-Signature"
	EventHeader     = "X-Telecare-Event"
	DeliveryHeader  = "X-Telecare-Delivery"
)

var (
	ErrQueueFull = errors.New("webhook queue full")
	ErrClosed    = errors.New("webhook dispatcher closed")
)

// Endpoint is a receiver and the event patterns it wants. Patterns are exact
// ("appointment.confirmed"), "<resource>.*", "*.<action>" or "*". No patterns
// means every event.
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// Delivery is the JSON body posted to an endpoint.
type Delivery struct {
	ID    uuid.UUID    `json:"id"`
	Event events.Event `json:"event"`
}

// ParseEndpoints builds one endpoint per URL sharing secret and patterns.
func ParseEndpoints(urls []string, secret string, patterns []string) ([]Endpoint, error) {
	var out []Endpoint
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			return nil, err
		}
		if secret == "" {
			return nil, fmt.Errorf("webhook %s: secret is required", raw)
		}
		out = append(out, Endpoint{URL: raw, Secret: secret, Events: patterns})
	}
	return out, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url %q has no host", raw)
	}
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a header value of the form "sha256=<hex>".
func VerifySignature(payload []byte, secret, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(sig))
}

func eventMatches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == eventType:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, pattern[1:])
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep Endpoint) wants(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if eventMatches(p, eventType) {
			return true
		}
	}
	return false
}

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRetryDelays sets the waits between attempts; the number of delays is
// the number of retries.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelays = delays }
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan job, n) }
}

type job struct {
	endpoint Endpoint
	delivery Delivery
}

// Dispatcher is an events.Publisher. Publish only enqueues; Start runs the
// workers that post.
type Dispatcher struct {
	endpoints   []Endpoint
	client      *http.Client
	retryDelays []time.Duration
	queue       chan job
	stop        chan struct{}
	stopOnce    sync.Once
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

func NewDispatcher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		endpoints:   endpoints,
		client:      &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 10 * time.Second, time.Minute},
		queue:       make(chan job, 256),
		stop:        make(chan struct{}),
		cancel:      func() {},
		logger:      logger.With().Str("component", "webhook").Logger(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) Publish(_ context.Context, e events.Event) error {
	select {
	case <-d.stop:
		return ErrClosed
	default:
	}

	delivery := Delivery{ID: uuid.New(), Event: e}
	var dropped int
	for _, ep := range d.endpoints {
		if !ep.wants(e.Type) {
			continue
		}
		select {
		case d.queue <- job{endpoint: ep, delivery: delivery}:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: dropped %d deliveries of %s", ErrQueueFull, dropped, e.Type)
	}
	return nil
}

// Start launches workers. They run until Shutdown or Close, or until ctx is
// cancelled, which abandons whatever is still queued. Servers should pass a
// context that outlives request handling and stop the workers with Shutdown.
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

// Shutdown stops accepting events and waits for the workers to deliver what
// is queued. When ctx ends first, in-flight attempts are aborted, the rest of
// the queue is dropped and ctx.Err() is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		if n := len(d.queue); n > 0 {
			d.logger.Warn().Int("dropped", n).Msg("webhook deliveries dropped at shutdown")
		}
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.deliver(ctx, j)
		case <-d.stop:
			for {
				if ctx.Err() != nil {
					return
				}
				select {
				case j := <-d.queue:
					d.deliver(ctx, j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	payload, err := json.Marshal(j.delivery)
	if err != nil {
		d.logger.Error().Err(err).Str("event", j.delivery.Event.Type).Msg("encode webhook payload")
		return
	}

	log := d.logger.With().
		Str("url", j.endpoint.URL).
		Str("event", j.delivery.Event.Type).
		Str("delivery_id", j.delivery.ID.String()).
		Logger()

	for attempt := 0; ; attempt++ {
		retry, err := d.post(ctx, j.endpoint, j.delivery, payload)
		if err == nil {
			log.Debug().Int("attempt", attempt+1).Msg("webhook delivered")
			return
		}
		if !retry || attempt >= len(d.retryDelays) {
			log.Warn().Err(err).Int("attempts", attempt+1).Msg("webhook delivery failed")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryDelays[attempt]):
		}
	}
}

// post makes one attempt. retry is false for failures a resend cannot fix.
func (d *Dispatcher) post(ctx context.Context, ep Endpoint, delivery Delivery, payload []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+SignPayload(payload, ep.Secret))
	req.Header.Set(EventHeader, delivery.Event.Type)
	req.Header.Set(DeliveryHeader, delivery.ID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("receiver answered %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("receiver rejected delivery with %d", resp.StatusCode)
	}
}
