// Package metrics exports session activity as Prometheus metrics. A Collector
// is registered on a session.Server with Observe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/scene/session"
	"github.com/wricardo/scenehost/transport"
)

// Config configures a Collector
type Config struct {
	// Namespace is the metrics namespace (default: "scenehost").
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for session durations in seconds.
	Buckets []float64

	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Option configures a Collector
type Option func(*Config)

// WithNamespace sets the metrics namespace
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the session duration buckets
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "scenehost",
		Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 4 * 3600},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector implements the session hooks and updates the metrics
type Collector struct {
	logins          *prometheus.CounterVec
	forwarded       prometheus.Counter
	dropped         *prometheus.CounterVec
	disconnects     prometheus.Counter
	authenticated   prometheus.Gauge
	sessionDuration prometheus.Histogram
	running         prometheus.Gauge
}

// New creates a Collector and registers its metrics
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "logins_total",
			Help:        "Login attempts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		forwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "messages_forwarded_total",
			Help:        "Messages from authenticated users forwarded to subscribers",
			ConstLabels: config.ConstLabels,
		}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "messages_dropped_total",
			Help:        "Inbound messages refused by the router",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "disconnects_total",
			Help:        "Authenticated users that disconnected",
			ConstLabels: config.ConstLabels,
		}),

		authenticated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "authenticated_users",
			Help:        "Currently authenticated users",
			ConstLabels: config.ConstLabels,
		}),

		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "user_session_duration_seconds",
			Help:        "Time from accepted login to disconnect",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "server_running",
			Help:        "1 while the session server is listening",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (c *Collector) UserConnected(userID uint32, user *session.UserConnection, response *protocol.Properties) {
	c.logins.WithLabelValues("accepted").Inc()
	c.authenticated.Inc()
}

func (c *Collector) UserRejected(user *session.UserConnection) {
	c.logins.WithLabelValues("rejected").Inc()
}

func (c *Collector) UserDisconnected(userID uint32, user *session.UserConnection) {
	c.disconnects.Inc()
	c.authenticated.Dec()
	if !user.LoginAt().IsZero() {
		c.sessionDuration.Observe(time.Since(user.LoginAt()).Seconds())
	}
}

func (c *Collector) MessageReceived(user *session.UserConnection, packetID uint32, messageID protocol.MessageID, data []byte) {
	c.forwarded.Inc()
}

func (c *Collector) MessageDropped(conn transport.Conn, messageID protocol.MessageID, reason session.DropReason) {
	c.dropped.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) ServerStarted(s *session.Server) {
	c.running.Set(1)
	c.authenticated.Set(0)
}

// ServerStopped resets the gauges; Stop clears users without disconnect hooks.
func (c *Collector) ServerStopped(s *session.Server) {
	c.running.Set(0)
	c.authenticated.Set(0)
}
