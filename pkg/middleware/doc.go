// Package middleware holds the mediahub request middleware: credential resolution
// for invite and user session tokens, and per-IP rate limiting.
//
// Credentials:
//
//	X-Invite-Token: <secret>        team principal (also Authorization: Bearer <secret>)
//	X-User-Token: <secret>          user principal
//
// Rate limiting uses the shared Redis window limiter when configured and falls back
// to an in-process token bucket:
//
//	limiter := middleware.NewFallbackLimiter(redisLimiter, middleware.NewLocalLimiter(cfg), logger)
//	router.Use(middleware.NewRateLimitMiddleware(limiter, "signin", cfg).Handler)
package middleware
