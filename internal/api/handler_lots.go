package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-finder-backend/internal/locate"
	"parking-finder-backend/internal/metrics"
	"parking-finder-backend/internal/store"
)

type closestLotsQuery struct {
	Latitude  *float64 `form:"latitude" binding:"required"`
	Longitude *float64 `form:"longitude" binding:"required"`
	Limit     *int     `form:"limit" binding:"omitempty,min=1"`
}

// GetClosestParkingLots handles GET /closest-parking-lots.
func (h *Handler) GetClosestParkingLots(c *gin.Context) {
	var q closestLotsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindErr(c, err)
		return
	}

	limit := locate.DefaultLimit
	if q.Limit != nil {
		limit = *q.Limit
	}

	metrics.RankRequestsTotal.Inc()
	rows, err := h.store.FetchRanked(c.Request.Context(), locate.Point{Lat: *q.Latitude, Lon: *q.Longitude}, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	metrics.RankedRows.Observe(float64(len(rows)))

	c.JSON(http.StatusOK, rows)
}

type updateStatusQuery struct {
	Latitude  *float64 `form:"latitude" binding:"required"`
	Longitude *float64 `form:"longitude" binding:"required"`
	UserID    string   `form:"user_id"`
}

type lotResponse struct {
	ID         string  `json:"id"`
	StreetName string  `json:"street_name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Status     string  `json:"status"`
}

type updateStatusResponse struct {
	ParkingLot lotResponse `json:"parking_lot"`
	Credits    *int        `json:"credits,omitempty"`
}

// UpdateParkingStatus handles PUT /update-parking-status: the nearest lot
// that is not restricted is marked available.
func (h *Handler) UpdateParkingStatus(c *gin.Context) {
	var q updateStatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindErr(c, err)
		return
	}

	ctx := c.Request.Context()
	res, err := h.store.AssignAvailable(ctx, locate.Point{Lat: *q.Latitude, Lon: *q.Longitude}, q.UserID, h.reportCredits)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNoEligibleLot), errors.Is(err, store.ErrUserNotFound):
			metrics.AssignmentsTotal.WithLabelValues("not_found").Inc()
		default:
			metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		}
		respondErr(c, err)
		return
	}

	if res.Changed() {
		metrics.AssignmentsTotal.WithLabelValues("changed").Inc()
		if h.cache != nil {
			h.cache.Flush(ctx)
		}
		if h.notifier != nil {
			h.notifier.Dispatch(res.Lot.ID)
		}
	} else {
		metrics.AssignmentsTotal.WithLabelValues("unchanged").Inc()
	}

	c.JSON(http.StatusOK, updateStatusResponse{
		ParkingLot: lotResponse{
			ID:         res.Lot.ID,
			StreetName: res.Lot.StreetName,
			Latitude:   res.Lot.Latitude,
			Longitude:  res.Lot.Longitude,
			Status:     string(res.Lot.Status),
		},
		Credits: res.Credits,
	})
}
