package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"parking-finder-backend/internal/apperr"
	"parking-finder-backend/internal/auth"
	"parking-finder-backend/internal/mw"
	"parking-finder-backend/internal/store"
)

// Notifier receives the id of every lot a report flipped to available.
type Notifier interface {
	Dispatch(lotID string)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	webpush       *webpush.Options
	cache         mw.ResponseCache
	notifier      Notifier
	hasher        *auth.Hasher
	reportCredits int
}

// NewHandler creates a new API handler. Cache and Notifier in opts may be nil.
func NewHandler(s store.Store, opts RouterOptions) *Handler {
	hasher := opts.Hasher
	if hasher == nil {
		hasher = auth.NewHasher(auth.MinIterations)
	}
	return &Handler{
		store:         s,
		webpush:       opts.Webpush,
		cache:         opts.Cache,
		notifier:      opts.Notifier,
		hasher:        hasher,
		reportCredits: opts.ReportCredits,
	}
}

// respondErr writes err as {"detail": ...} with the status it carries.
// Unclassified errors are logged and reported as a bare 500.
func respondErr(c *gin.Context, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"request_id", c.GetString("request_id"),
			"route", c.FullPath(),
			"error", err,
		)
		c.AbortWithStatusJSON(status, gin.H{"detail": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": apperr.Detail(err)})
}

// respondBindErr reports a binding failure. Validation failures list the
// offending fields by their wire names.
func respondBindErr(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request: " + err.Error()})
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		fields[fe.Field()] = msg
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"detail": "invalid request",
		"fields": fields,
	})
}
