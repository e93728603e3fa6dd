package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parking-finder-backend/internal/db"
	"parking-finder-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	// The worker and the test poll the same database concurrently.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gormDB
}

func TestWorkerPool_Dispatch(t *testing.T) {
	gormDB, _ := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	wp.Dispatch("B-1")

	select {
	case job := <-wp.jobs:
		assert.Equal(t, "B-1", job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	gormDB, _ := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	// No workers are started, so the buffer fills up.
	for i := 0; i < queueFactor+5; i++ {
		wp.Dispatch(fmt.Sprintf("B-%d", i))
	}
	assert.Len(t, wp.jobs, queueFactor)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	subscriptionsQuery := `SELECT .* FROM "push_subscriptions".*JOIN subscription_lot_mapping slm.*WHERE slm\.parking_lot_id = \$1`
	lotQuery := `SELECT "street_name" FROM "parking_lots" WHERE id = \$1 ORDER BY "parking_lots"."id" LIMIT \$2`

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)

				var msg Message
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, "B-101", msg.LotID)
				assert.Equal(t, "A spot on Main St is now available!", msg.Body)
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs("B-101").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/push", "test_p256dh", "test_auth", time.Now()))
		mock.ExpectQuery(lotQuery).
			WithArgs("B-101", 1).
			WillReturnRows(sqlmock.NewRows([]string{"street_name"}).AddRow("Main St"))

		wp.Dispatch("B-101")
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to lot id when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				var msg Message
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, "A spot on B-103 is now available!", msg.Body)
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs("B-103").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/fallback", "k", "a", time.Now()))
		mock.ExpectQuery(lotQuery).
			WithArgs("B-103", 1).
			WillReturnError(errors.New("lot not found"))

		wp.Dispatch("B-103")
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no subscribers sends nothing", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("sender must not be called")
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs("B-104").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}))

		wp.Dispatch("B-104")
		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	gormDB := newSQLiteDB(t)
	lot := model.ParkingLot{ID: "B-7", StreetName: "Pine St", Status: model.LotStatusUnset}
	require.NoError(t, gormDB.Create(&lot).Error)
	require.NoError(t, gormDB.Create(&model.PushSubscription{
		Endpoint:  "https://example.com/expired",
		P256DH:    "k",
		Auth:      "a",
		CreatedAt: time.Now(),
		Lots:      []*model.ParkingLot{&lot},
	}).Error)

	wp := NewWorkerPool(1, gormDB, &webpush.Options{})
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			return response(http.StatusGone), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)
	wp.Dispatch("B-7")

	assert.Eventually(t, func() bool {
		var subs, mappings int64
		gormDB.Model(&model.PushSubscription{}).Count(&subs)
		gormDB.Table("subscription_lot_mapping").Count(&mappings)
		return subs == 0 && mappings == 0
	}, 2*time.Second, 20*time.Millisecond)

	var count int64
	require.NoError(t, gormDB.Model(&model.ParkingLot{}).Where("id = ?", "B-7").Count(&count).Error)
	assert.Equal(t, int64(1), count, "the lot itself must survive")
}
