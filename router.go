package main

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "nalanda-backend/docs"
	"nalanda-backend/internal/books"
	"nalanda-backend/internal/borrows"
	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/auth"
	"nalanda-backend/internal/platform/config"
	"nalanda-backend/internal/platform/db"
	"nalanda-backend/internal/platform/mailer"
	"nalanda-backend/internal/platform/middleware"
	"nalanda-backend/internal/reports"
	"nalanda-backend/internal/users"
)

// devJWTSecret は dev モードで jwt_secret 未設定のときだけ使う
const devJWTSecret = "nalanda-dev-secret"

func newIssuer(cfg *config.Config) *auth.Issuer {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Printf("[WARN] auth.jwt_secret is empty; using the built-in dev secret")
		secret = devJWTSecret
	}
	return auth.NewIssuer([]byte(secret), cfg.Auth.JWTExpire)
}

func newRouter(cfg *config.Config, conn *sql.DB, m mailer.Mailer) *gin.Engine {
	d := db.DialectFor(cfg.DB.Driver)
	iss := newIssuer(cfg)
	requireAuth := auth.RequireAuth(iss)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())
	_ = r.SetTrustedProxies(nil)

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", "Location", middleware.HeaderRequestID},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")

	// 認証系だけ IP 単位でレート制限
	limited := api.Group("", middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	users.RegisterRoutes(limited, users.NewService(conn, m, iss, cfg.FrontendURL), requireAuth, users.CookieConfig{
		MaxAge: cfg.Auth.CookieExpireDays * 24 * 60 * 60,
		Secure: cfg.Mode == config.ModeRelease,
	})
	books.RegisterRoutes(api, books.NewService(conn, d), requireAuth)
	borrows.RegisterRoutes(api, borrows.NewService(conn, d), requireAuth)
	reports.RegisterRoutes(api, reports.NewService(conn), requireAuth)

	r.NoRoute(func(c *gin.Context) {
		apierr.Respond(c, apierr.ErrNotFound("route not found: "+c.Request.Method+" "+c.Request.URL.Path))
	})
	return r
}
