package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/blake2b"
)

// ============================================================
// Dispatcher: buffered queue + worker goroutines
// ============================================================

// NotificationSink delivers one event to an external channel
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, evt NotificationEvent) error
}

// NotificationDispatcher hands events to sinks in the background. Publish
// never blocks: when the buffer is full the event is dropped and logged.
type NotificationDispatcher struct {
	sinks    []NotificationSink
	events   chan NotificationEvent
	workers  int
	timeout  time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewNotificationDispatcher creates a new dispatcher
func NewNotificationDispatcher(buffer, workers int, sinks ...NotificationSink) *NotificationDispatcher {
	if buffer < 1 {
		buffer = 100
	}
	if workers < 1 {
		workers = 1
	}
	return &NotificationDispatcher{
		sinks:    sinks,
		events:   make(chan NotificationEvent, buffer),
		workers:  workers,
		timeout:  10 * time.Second,
		stopChan: make(chan struct{}),
	}
}

// Start launches the delivery workers
func (d *NotificationDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	log.Printf("🚀 NotificationDispatcher started (%d workers, %d sinks)", d.workers, len(d.sinks))
}

// Stop delivers what is already buffered, then stops the workers
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
		d.wg.Wait()
		log.Println("🛑 NotificationDispatcher stopped")
	})
}

// Publish queues an event without blocking
func (d *NotificationDispatcher) Publish(evt NotificationEvent) {
	select {
	case d.events <- evt:
	default:
		log.Printf("⚠️ Notification queue full, dropping %s for user %d", evt.Type, evt.UserID)
	}
}

func (d *NotificationDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case evt := <-d.events:
			d.deliver(evt)
		case <-d.stopChan:
			for {
				select {
				case evt := <-d.events:
					d.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (d *NotificationDispatcher) deliver(evt NotificationEvent) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := sink.Deliver(ctx, evt); err != nil {
			log.Printf("❌ Notification %s via %s failed: %v", evt.Type, sink.Name(), err)
		}
		cancel()
	}
}

// ============================================================
// Sinks
// ============================================================

// LogSink writes events to the application log
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, evt NotificationEvent) error {
	log.Printf("📨 [%s] user=%d book=%d event=%s", evt.Type, evt.UserID, evt.BookID, evt.ID)
	return nil
}

// WebhookSink posts events as JSON to the notification collaborator
type WebhookSink struct {
	url    string
	token  string
	secret []byte
	client *http.Client
}

// NewWebhookSink creates a webhook sink. token is sent as a bearer
// credential; secret keys the X-Signature body MAC. Both are optional.
func NewWebhookSink(url, token, secret string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		token:  token,
		secret: []byte(secret),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Sign returns the hex keyed BLAKE2b-256 MAC of body
func (s *WebhookSink) Sign(body []byte) (string, error) {
	mac, err := blake2b.New256(s.secret)
	if err != nil {
		return "", err
	}
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, evt NotificationEvent) error {
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(evt)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if len(s.secret) > 0 {
		sig, err := s.Sign(body)
		if err != nil {
			return err
		}
		req.Header.Set("X-Signature", "blake2b-256="+sig)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
