package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/identity"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

// CasdoorAuthMiddleware authenticates backend calls with the identity provider's JWT.
// The role always comes from the stored user record, never from the token.
type CasdoorAuthMiddleware struct {
	provider identity.Provider
	users    services.UserService
	logger   utils.Logger
}

func NewCasdoorAuthMiddleware(provider identity.Provider, users services.UserService, logger utils.Logger) *CasdoorAuthMiddleware {
	return &CasdoorAuthMiddleware{
		provider: provider,
		users:    users,
		logger:   logger,
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:     "unauthorized",
		Message:   message,
		Timestamp: time.Now(),
	})
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header missing")
	}

	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" || tokenParts[1] == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return tokenParts[1], nil
}

// AuthMiddleware verifies the bearer token and loads the caller's user record if one exists
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		ident, err := cam.provider.Verify(c.Request.Context(), token)
		if err != nil {
			unauthorized(c, fmt.Sprintf("invalid token: %v", err))
			return
		}

		if err := cam.loadUser(c, ident); err != nil {
			utils.FromContext(c, cam.logger).Error("Failed to load user record", "email", ident.Email, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
				Message:   "Failed to load user",
				Timestamp: time.Now(),
			})
			return
		}

		c.Next()
	}
}

// OptionalAuthMiddleware sets the caller when a valid token is present and never rejects
func (cam *CasdoorAuthMiddleware) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.Next()
			return
		}

		if ident, err := cam.provider.Verify(c.Request.Context(), token); err == nil {
			if err := cam.loadUser(c, ident); err != nil {
				utils.FromContext(c, cam.logger).Warn("Failed to load user record", "email", ident.Email, "error", err)
			}
		}

		c.Next()
	}
}

func (cam *CasdoorAuthMiddleware) loadUser(c *gin.Context, ident *identity.Identity) error {
	c.Set("identity", ident)
	c.Set("user_email", models.NormalizeEmail(ident.Email))

	user, err := cam.users.GetByEmail(c.Request.Context(), ident.Email)
	switch {
	case err == nil:
		c.Set("user", user)
		c.Set("user_role", user.Role)
	case errors.Is(err, services.ErrUserNotFound):
		// registration has not happened yet; only POST /users accepts this caller
	default:
		return err
	}
	return nil
}

// RequireUser rejects callers that have an identity but no user record
func (cam *CasdoorAuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := GetUserFromContext(c); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:     "forbidden",
				Message:   "user is not registered",
				Timestamp: time.Now(),
			})
			return
		}
		c.Next()
	}
}

// RequireRoleMiddleware checks the stored role of the caller
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetUserRoleFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:     "forbidden",
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			return
		}

		if !slices.Contains(requiredRoles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:     "forbidden",
				Message:   fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
				Timestamp: time.Now(),
			})
			return
		}

		c.Next()
	}
}

// GetUserFromContext extracts user from Gin context
func GetUserFromContext(c *gin.Context) (*models.User, error) {
	user, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("user not found in context")
	}

	userModel, ok := user.(*models.User)
	if !ok {
		return nil, fmt.Errorf("invalid user type in context")
	}

	return userModel, nil
}

// GetIdentityFromContext extracts the verified token identity from Gin context
func GetIdentityFromContext(c *gin.Context) (*identity.Identity, error) {
	v, exists := c.Get("identity")
	if !exists {
		return nil, fmt.Errorf("identity not found in context")
	}

	ident, ok := v.(*identity.Identity)
	if !ok {
		return nil, fmt.Errorf("invalid identity type in context")
	}

	return ident, nil
}

// GetUserRoleFromContext extracts user role from Gin context
func GetUserRoleFromContext(c *gin.Context) (models.UserRole, error) {
	userRole, exists := c.Get("user_role")
	if !exists {
		return "", fmt.Errorf("user role not found in context")
	}

	role, ok := userRole.(models.UserRole)
	if !ok {
		return "", fmt.Errorf("invalid user role type in context")
	}

	return role, nil
}
