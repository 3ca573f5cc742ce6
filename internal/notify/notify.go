// Package notify delivers block alerts to external channels without
// holding up the request that caused the block.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/bruteguard/internal/metrics"
	"github.com/BradenHooton/bruteguard/internal/models"
)

// ErrNotConfigured is returned by a sink that has nothing to deliver to.
var ErrNotConfigured = errors.New("sink not configured")

// Event describes a freshly created block.
type Event struct {
	IP        string
	Reason    string
	Country   string
	ISP       string
	Attempts  int
	Usernames []string
	Origin    models.BlockOrigin
	Duration  string
	Timestamp time.Time
}

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, evt Event) error
}

// Dispatcher fans events out to sinks from a single background worker.
// Enqueueing never blocks; when the queue is full the event is dropped.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(sinks []Sink, queueSize int, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, queueSize),
		timeout: timeout,
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	go d.run()
}

// Notify enqueues evt and returns immediately.
func (d *Dispatcher) Notify(evt Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed || len(d.sinks) == 0 {
		return
	}

	select {
	case d.queue <- evt:
	default:
		d.logger.Warn("notification queue full, dropping event", slog.String("ip", evt.IP))
		if d.metrics != nil {
			d.metrics.NotificationsDropped.Inc()
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for evt := range d.queue {
		d.deliver(evt)
	}
}

func (d *Dispatcher) deliver(evt Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Send(ctx, evt)
		cancel()

		result := "sent"
		switch {
		case errors.Is(err, ErrNotConfigured):
			result = "skipped"
			d.logger.Debug("notification sink not configured", slog.String("sink", sink.Name()))
		case err != nil:
			result = "failed"
			d.logger.Warn("notification failed",
				slog.String("sink", sink.Name()),
				slog.String("ip", evt.IP),
				slog.Any("error", err),
			)
		default:
			d.logger.Info("notification sent", slog.String("sink", sink.Name()), slog.String("ip", evt.IP))
		}
		if d.metrics != nil {
			d.metrics.Notifications.WithLabelValues(sink.Name(), result).Inc()
		}
	}
}

// FormatAlert renders the alert as Telegram legacy Markdown. Interpolated
// fields are escaped: an unbalanced entity makes the Bot API reject the
// whole message.
func FormatAlert(evt Event) string {
	return renderAlert(evt, "*SECURITY ALERT*", escapeMarkdown)
}

// FormatPlainAlert renders the same alert without markup.
func FormatPlainAlert(evt Event) string {
	return renderAlert(evt, "SECURITY ALERT", func(s string) string { return s })
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func renderAlert(evt Event, title string, esc func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 %s\n\n", title)
	fmt.Fprintf(&b, "IP Blocked: %s\n", esc(evt.IP))
	fmt.Fprintf(&b, "Reason: %s\n", esc(evt.Reason))
	fmt.Fprintf(&b, "Country: %s", esc(evt.Country))
	if evt.ISP != "" && evt.ISP != models.ISPUnknown {
		fmt.Fprintf(&b, "\nNetwork: %s", esc(evt.ISP))
	}
	if len(evt.Usernames) > 0 {
		names := make([]string, len(evt.Usernames))
		for i, u := range evt.Usernames {
			names[i] = esc(u)
		}
		fmt.Fprintf(&b, "\nUsernames: %s", strings.Join(names, ", "))
	}
	return b.String()
}
