package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated exhibitor's information
type UserContext struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	Company string    `json:"company"`
}

// AuthMiddleware creates a middleware that validates JWT tokens and rejects
// unauthenticated requests
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, errCode := extractClaims(c, jwtService)
		if claims == nil {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
				"code": errCode,
			}).Warn("Authentication failed")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "A valid access token is required",
				"code":    errCode,
			})
			c.Abort()
			return
		}

		c.Set(UserContextKey, UserContext{
			UserID:  claims.UserID,
			Email:   claims.Email,
			Company: claims.Company,
		})
		c.Next()
	}
}

// OptionalAuthMiddleware validates a token when one is present but lets
// anonymous requests through. Handlers decide per step whether
// authentication is required.
func OptionalAuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		claims, errCode := extractClaims(c, jwtService)
		if claims == nil {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
				"code": errCode,
			}).Warn("Authentication failed")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "The provided access token is invalid",
				"code":    errCode,
			})
			c.Abort()
			return
		}
		c.Set(UserContextKey, UserContext{
			UserID:  claims.UserID,
			Email:   claims.Email,
			Company: claims.Company,
		})
		c.Next()
	}
}

func extractClaims(c *gin.Context, jwtService *jwt.Service) (*jwt.Claims, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, "MISSING_AUTH_HEADER"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, "INVALID_AUTH_FORMAT"
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, "INVALID_AUTH_FORMAT"
	}

	claims, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, "INVALID_TOKEN"
	}
	return claims, ""
}

// GetUserContext retrieves the authenticated user from the Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}
	userCtx, ok := value.(UserContext)
	return userCtx, ok
}

// IsAuthenticated reports whether the request carries a valid user context
func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetUserContext(c)
	return ok
}
