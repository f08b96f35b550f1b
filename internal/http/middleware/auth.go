package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/data/repos/user"
	"github.com/inkwell-notes/inkwell-backend/internal/http/response"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/requestdata"
	"github.com/inkwell-notes/inkwell-backend/internal/services"
)

type AuthMiddleware struct {
	log      *logger.Logger
	verifier services.TokenVerifier
	users    user.UserRepo
}

func NewAuthMiddleware(log *logger.Logger, verifier services.TokenVerifier, users user.UserRepo) *AuthMiddleware {
	return &AuthMiddleware{
		log:      log.With("middleware", "AuthMiddleware"),
		verifier: verifier,
		users:    users,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.Abort()
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		userID, err := am.verifier.VerifyToken(tokenString)
		if err != nil || userID == uuid.Nil {
			am.log.Debug("Token rejected", "error", errString(err))
			c.Abort()
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		// A valid signature is not enough; the subject must still exist.
		if _, err := am.users.GetByID(c.Request.Context(), nil, userID); err != nil {
			c.Abort()
			if errors.Is(err, user.ErrNotFound) {
				am.log.Debug("Token subject unknown", "user_id", userID)
				response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			am.log.Error("User lookup failed", "error", err.Error())
			response.RespondError(c, http.StatusInternalServerError, "internal error", nil)
			return
		}

		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
