package middleware

import (
	"context"
	"errors"
	"net/http"

	"livebridge/internal/core/domain"
	apperrors "livebridge/pkg/errors"
	"livebridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error attached with c.Error as
// {error, message, details}.
func ErrorHandlerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := ToAppError(err)
		reqLog := logger.FromContext(c.Request.Context(), log)

		fields := []interface{}{
			"code", appErr.Code,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err.Error(),
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			reqLog.Errorw("request failed", fields...)
		} else {
			reqLog.Infow("request rejected", fields...)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// ToAppError maps domain errors onto HTTP-facing application errors.
func ToAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrNoSession):
		return apperrors.NewNoSessionError()
	case errors.Is(err, domain.ErrNoRelayAccepted), errors.Is(err, domain.ErrNoRelays):
		return apperrors.NewBadGatewayError(err.Error(), err)
	case errors.Is(err, domain.ErrNotConnected):
		return apperrors.NewBadGatewayError("broadcast software unreachable", err)
	case errors.Is(err, domain.ErrRelayNotFound):
		return apperrors.NewNotFoundError("relay")
	case errors.Is(err, domain.ErrUnknownChannel):
		return apperrors.NewNotFoundError("channel")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewServiceUnavailableError("operation timed out")
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
