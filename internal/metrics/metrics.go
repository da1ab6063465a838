package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campus_chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_messages_sent_total",
			Help: "Total messages stored",
		},
		[]string{"room_type"}, // "private" or "group"
	)

	DuplicateSends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_chat_duplicate_sends_total",
			Help: "Message submissions answered from an existing client id",
		},
	)

	PrivateRoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_chat_private_rooms_created_total",
			Help: "Total private rooms created",
		},
	)

	ModerationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_moderation_actions_total",
			Help: "Total moderation actions",
		},
		[]string{"action"}, // "pin", "unpin", "delete"
	)

	AttachmentsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_attachments_uploaded_total",
			Help: "Total attachments stored",
		},
		[]string{"kind"},
	)

	// Feed metrics
	FeedConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campus_chat_feed_connections",
			Help: "Open change feed sockets",
		},
	)

	FeedFramesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_chat_feed_frames_delivered_total",
			Help: "Feed frames queued to sockets",
		},
	)

	FeedFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_chat_feed_frames_dropped_total",
			Help: "Feed frames dropped because a socket queue was full",
		},
	)
)
