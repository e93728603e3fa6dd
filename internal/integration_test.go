package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parking-finder-backend/config"
	"parking-finder-backend/internal/api"
	"parking-finder-backend/internal/db"
	"parking-finder-backend/internal/importer"
	"parking-finder-backend/internal/model"
	"parking-finder-backend/internal/mw"
	"parking-finder-backend/internal/store"
)

type feedRow struct {
	ID           string                  `json:"id"`
	StreetName   string                  `json:"street_name"`
	Latitude     float64                 `json:"latitude"`
	Longitude    float64                 `json:"longitude"`
	Status       string                  `json:"status"`
	Restrictions []store.RestrictionItem `json:"restrictions"`
}

// TestParkingLifecycle imports lots from a feed, ranks them over HTTP,
// reports availability and re-imports, checking the database at each step.
func TestParkingLifecycle(t *testing.T) {
	// --- Setup ---
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	var round atomic.Int32
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := []feedRow{
			{ID: "100", StreetName: "Market St", Latitude: 37.7749, Longitude: -122.4194, Status: "restricted",
				Restrictions: []store.RestrictionItem{{Day: "mon", StartTime: "7am", EndTime: "9am"}}},
			{ID: "200", StreetName: "Mission St", Latitude: 37.7760, Longitude: -122.4180,
				Restrictions: []store.RestrictionItem{
					{Day: "Tue", StartTime: "10:00", EndTime: "12:00"},
					{Day: "Thu", StartTime: "10:00", EndTime: "12:00"},
				}},
			{ID: "300", StreetName: "Howard St", Latitude: 37.7800, Longitude: -122.4100},
		}
		if round.Load() > 0 {
			// Second import: Mission St loses its Thursday window.
			rows[1].Restrictions = rows[1].Restrictions[:1]
		}
		resp := map[string]any{
			"code": 0,
			"data": map[string]any{"page": 1, "pageSize": 10, "total": len(rows), "items": rows},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer feed.Close()

	cfg := &config.Config{
		Importer: config.ImporterConfig{
			Enabled:  true,
			Interval: time.Hour,
			Request:  config.ImporterRequest{URL: feed.URL, PageSize: 10},
		},
	}

	appStore := store.NewGormStore(testDB)
	cache := mw.NewMemoryCache(time.Minute, time.Minute)
	svc := importer.NewService(cfg, appStore, cache)
	router := api.NewRouter(appStore, api.RouterOptions{
		Cache:           cache,
		CacheTTL:        time.Minute,
		ReportCredits:   50,
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
	})

	do := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w
	}

	// --- Step 1: import ---
	n, err := svc.ImportOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var windows []model.BlockRestriction
	require.NoError(t, testDB.Order("id").Find(&windows).Error)
	require.Len(t, windows, 3)
	assert.Equal(t, "Monday", windows[0].Day)
	assert.Equal(t, "07:00", windows[0].StartTime)

	// --- Step 2: rank from right next to Market St ---
	w := do(http.MethodGet, "/closest-parking-lots?latitude=37.7749&longitude=-122.4194")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	var ids []any
	for _, row := range rows {
		ids = append(ids, row["id"])
	}
	assert.Equal(t, []any{"100", "200", "200", "300"}, ids)

	// --- Step 3: report; Market St is restricted so Mission St is chosen ---
	w = do(http.MethodPut, "/update-parking-status?latitude=37.7749&longitude=-122.4194")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report struct {
		ParkingLot struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"parking_lot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "200", report.ParkingLot.ID)
	assert.Equal(t, "available", report.ParkingLot.Status)

	var market model.ParkingLot
	require.NoError(t, testDB.First(&market, "id = ?", "100").Error)
	assert.Equal(t, model.LotStatusRestricted, market.Status)

	// --- Step 4: re-import replaces windows of imported lots ---
	target := "/closest-parking-lots?latitude=37.7749&longitude=-122.4194&limit=2"
	require.Equal(t, http.StatusOK, do(http.MethodGet, target).Code)
	require.Equal(t, "HIT", do(http.MethodGet, target).Header().Get("X-Cache"))

	round.Add(1)
	_, err = svc.ImportOnce(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, testDB.Model(&model.BlockRestriction{}).Where("block_id = ?", "200").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	w = do(http.MethodGet, target)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"), "import must flush the response cache")
	rows = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "200", rows[1]["id"])
	assert.Equal(t, "Tuesday", rows[1]["day"])
}
