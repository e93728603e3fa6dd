package notification

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"parking-finder-backend/internal/metrics"
	"parking-finder-backend/internal/model"
)

// queueFactor sizes the job buffer relative to the number of workers.
const queueFactor = 16

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload delivered to subscribers.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	LotID string `json:"lot_id"`
}

// WorkerPool fans "lot became available" events out to push subscribers.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*queueFactor),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	slog.Debug("notification worker started", "worker", id)
	for {
		select {
		case lotID := <-wp.jobs:
			slog.Debug("notification worker processing lot", "worker", id, "lot_id", lotID)
			wp.notifyLot(ctx, lotID)
		case <-ctx.Done():
			slog.Debug("notification worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a notification for lotID. It never blocks the caller: when
// the queue is full the event is dropped and counted.
func (wp *WorkerPool) Dispatch(lotID string) {
	select {
	case wp.jobs <- lotID:
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		slog.Warn("notification queue full, dropping event", "lot_id", lotID)
	}
}

func (wp *WorkerPool) notifyLot(ctx context.Context, lotID string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_lot_mapping slm ON slm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("slm.parking_lot_id = ?", lotID).
		Find(&subscriptions).Error
	if err != nil {
		slog.Error("failed to fetch subscriptions", "lot_id", lotID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := lotID
	var lot model.ParkingLot
	if err := wp.db.WithContext(ctx).
		Select("street_name").
		First(&lot, "id = ?", lotID).Error; err != nil {
		slog.Warn("failed to fetch lot for notification", "lot_id", lotID, "error", err)
	} else if lot.StreetName != "" {
		label = lot.StreetName
	}

	payload, err := json.Marshal(Message{
		Title: "Parking available",
		Body:  "A spot on " + label + " is now available!",
		LotID: lotID,
	})
	if err != nil {
		slog.Error("failed to encode notification", "lot_id", lotID, "error", err)
		return
	}

	slog.Info("sending notifications", "lot_id", lotID, "subscribers", len(subscriptions))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		slog.Warn("failed to send notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		metrics.NotificationsTotal.WithLabelValues("expired").Inc()
		slog.Info("subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select("Lots").Delete(&sub).Error; err != nil {
			slog.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
		return
	}
	if resp.StatusCode >= 400 {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		slog.Warn("push service rejected notification", "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}
