package api

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"parking-finder-backend/internal/auth"
	"parking-finder-backend/internal/metrics"
	"parking-finder-backend/internal/mw"
	"parking-finder-backend/internal/store"
)

// RouterOptions carries the optional collaborators of the HTTP layer.
type RouterOptions struct {
	Webpush  *webpush.Options
	Cache    mw.ResponseCache
	CacheTTL time.Duration
	Notifier Notifier
	Hasher   *auth.Hasher

	ReportCredits   int
	RateLimitPerSec float64
	RateLimitBurst  int
}

var registerTagNames sync.Once

// useWireFieldNames makes validation errors report form/json names.
func useWireFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, opts RouterOptions) *gin.Engine {
	useWireFieldNames()

	r := gin.New()
	r.Use(mw.RequestLog(), gin.Recovery())

	handler := NewHandler(s, opts)

	if opts.RateLimitPerSec <= 0 {
		opts.RateLimitPerSec = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 5
	}
	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	closest := []gin.HandlerFunc{handler.GetClosestParkingLots}
	if opts.Cache != nil {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		closest = append([]gin.HandlerFunc{mw.Cache(opts.Cache, ttl)}, closest...)
	}

	r.GET("/", handler.Root)
	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/")
	api.Use(rateLimiter)
	{
		api.GET("/closest-parking-lots", closest...)
		api.PUT("/update-parking-status", handler.UpdateParkingStatus)

		api.POST("/signup", handler.Signup)
		api.POST("/login", handler.Login)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
