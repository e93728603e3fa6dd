package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-finder-backend/internal/apperr"
	"parking-finder-backend/internal/model"
)

var errSubscriptionNotFound = errors.New("subscription not found")

type putSubscriptionRequest struct {
	Endpoint       string   `json:"endpoint" binding:"required,url"`
	P256DH         string   `json:"p256dh" binding:"required"`
	Auth           string   `json:"auth" binding:"required"`
	SubscribedLots []string `json:"subscribed_lots"`
}

// PutSubscription creates or replaces a subscription and the lots it follows.
// Unknown lot ids are ignored.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}

	err := h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&subscription).Error; err != nil {
			return err
		}

		lots := []*model.ParkingLot{}
		if len(req.SubscribedLots) > 0 {
			if err := tx.Where("id IN ?", req.SubscribedLots).Find(&lots).Error; err != nil {
				return err
			}
		}

		return tx.Model(&subscription).Association("Lots").Replace(lots)
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes a subscription together with its lot mappings.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}

	sub := model.PushSubscription{Endpoint: req.Endpoint}
	if err := h.store.DB().WithContext(c.Request.Context()).Select("Lots").Delete(&sub).Error; err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns a query value without URL decoding; push endpoints
// are stored exactly as the browser reported them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription returns the lot ids a subscription follows.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "endpoint is required"})
		return
	}

	var subscription model.PushSubscription
	err := h.store.DB().WithContext(c.Request.Context()).
		Preload("Lots", func(db *gorm.DB) *gorm.DB { return db.Order("parking_lots.id") }).
		First(&subscription, "endpoint = ?", raw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondErr(c, apperr.NotFound(errSubscriptionNotFound))
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	lotIDs := make([]string, len(subscription.Lots))
	for i, lot := range subscription.Lots {
		lotIDs[i] = lot.ID
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_lots": lotIDs})
}
