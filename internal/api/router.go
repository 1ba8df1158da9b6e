// internal/api/router.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

// login attempts allowed per client IP and window
const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

// SetupRouter builds the HTTP routes.
func SetupRouter(h *Handler, debug bool) *gin.Engine {
	if !debug && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery(), requestIDMiddleware(), loggingMiddleware(h.Metrics), corsMiddleware())

	r.GET("/health", h.Health)

	limiter := NewRateLimiter()
	requireSession := AuthMiddleware(h.Tokens)

	api := r.Group("/api")
	{
		api.POST("/auth/login", RateLimitByIP(limiter, loginAttempts, loginWindow), h.Login)

		secured := api.Group("", requireSession)

		sessionGroup := secured.Group("/session")
		{
			sessionGroup.GET("", h.GetSession)
			sessionGroup.DELETE("", h.Logout)
			sessionGroup.PUT("/meta", h.UpdateMeta)
		}

		secured.GET("/services", h.ListServiceOptions)
		secured.POST("/services", h.AddServiceOption)

		materials := secured.Group("/materials")
		{
			materials.POST("", h.AddMaterial)
			materials.PUT("/:id", h.UpdateMaterial)
			materials.DELETE("/:id", h.DeleteMaterial)
			materials.POST("/:id/move", h.MoveMaterial)
			materials.POST("/:id/files", h.UploadFiles)
			materials.POST("/:id/verses", h.FillVerse)
		}

		bible := secured.Group("/bible")
		{
			bible.GET("/books", h.ListBooks)
			bible.GET("/:book/:chapter", h.GetChapter)
		}

		drafts := secured.Group("/drafts")
		{
			drafts.POST("/save", h.SaveDraft)
			drafts.POST("/load", h.LoadDraft)
		}

		submissions := secured.Group("/submissions")
		{
			submissions.POST("", h.Submit)
			submissions.GET("", h.ListSubmissions)
			submissions.GET("/record", h.GetRecord)
			submissions.GET("/file", h.DownloadFile)
		}

		secured.GET("/export/docx", h.ExportDocx)
		secured.GET("/metrics", h.GetMetrics)
	}

	if h.Reviews != nil {
		r.GET("/ws/reviews", requireSession, h.Reviews.Serve)
	}

	return r
}
