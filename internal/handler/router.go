package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"makesta/internal/auth"
	"makesta/internal/httpmiddleware"
)

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	CORSOrigins []string
	// AuthLimiter throttles /auth routes. Nil disables throttling.
	AuthLimiter httpmiddleware.Limiter
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(h.logger, "/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	h.Routes(r, opts.AuthLimiter)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", httpmiddleware.RequestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// Routes mounts the API on r.
func (h *Handler) Routes(r gin.IRouter, limiter httpmiddleware.Limiter) {
	authn := auth.Authenticate(h.issuer)
	organizer := auth.RequireRole(auth.RoleOrganizer)
	staff := auth.RequireRole(auth.RoleOrganizer, auth.RoleInstructor)
	participant := auth.RequireRole(auth.RoleParticipant)

	a := r.Group("/auth")
	if limiter != nil {
		a.Use(httpmiddleware.RateLimit(limiter, h.logger))
	}
	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.GET("/me", authn, h.me)

	m := r.Group("/materials", authn)
	m.GET("", h.listMaterials)
	m.POST("", organizer, h.createMaterial)
	m.PATCH("/:id", organizer, h.updateMaterial)
	m.GET("/:id/download", h.downloadMaterial)
	m.DELETE("/:id", organizer, h.deleteMaterial)

	s := r.Group("/attendance-sessions", authn, staff)
	s.GET("", h.listSessions)
	s.POST("", h.createSession)
	s.PATCH("/:id/close", h.closeSession)
	s.GET("/:id/records", h.listRecords)

	rec := r.Group("/attendance-records", authn)
	rec.POST("", h.createRecord)
	rec.PATCH("/:id", staff, h.updateRecord)

	r.GET("/participants", authn, staff, h.listParticipants)

	ins := r.Group("/instructors", authn, organizer)
	ins.GET("", h.listInstructors)
	ins.POST("", h.createInstructor)
	ins.PATCH("/:id", h.updateInstructor)
	ins.DELETE("/:id", h.deleteInstructor)

	g := r.Group("/grades", authn, organizer)
	g.GET("", h.listGrades)
	g.POST("", h.createGrade)
	g.PATCH("/:id", h.updateGrade)

	cert := r.Group("/certificates", authn, organizer)
	cert.GET("", h.listCertificates)
	cert.POST("", h.createCertificate)
	cert.PATCH("/:id", h.updateCertificate)
	cert.DELETE("/:id", h.deleteCertificate)

	me := r.Group("/me", authn, participant)
	me.GET("/grades", h.myGrade)
	me.GET("/certificates", h.myCertificates)

	r.GET("/activity", authn, organizer, h.listActivity)
}
