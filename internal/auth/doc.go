// Package auth provides authentication and authorization for the API.
//
// It supports two authentication modes:
//   - "none": No authentication (default). No identity is attached to requests,
//     actor ids are taken from request bodies and role checks are skipped.
//   - "local": Local user database with session cookies or Bearer JWTs.
//
// # Configuration
//
//	AUTH_MODE=none   # Default, no auth required
//	AUTH_MODE=local  # Requires user creation and login
//
// For local mode, additional configuration:
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>  # Auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h           # Session duration
//	AUTH_JWT_SECRET=<hex-32-bytes>      # Auto-generated if empty (tokens die with the process)
//	AUTH_TOKEN_EXPIRY=720h              # Bearer token expiry (30 days default)
//	AUTH_BCRYPT_COST=12                 # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true            # HTTPS-only cookies
//
// # Usage
//
//	tokens := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenExpiry)
//	authService := auth.NewService(users.NewRepository(db), tokens, cfg.Auth)
//	authMiddleware := auth.NewMiddleware(authService, sessions, cfg.Auth)
//	router.Use(authMiddleware.Handler())
//	admin := api.Group("", authMiddleware.RequireRole(entities.UserRoleAdmin))
//
// Extract user in handlers:
//
//	userID := auth.GetUserID(c)  // DefaultUserID (0) in "none" mode
package auth
