package middleware

import (
	"errors"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/logger"
	"github.com/costgov/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AbortWithError writes the error envelope for err and aborts the chain.
// Domain errors map to their status; anything else is a logged 500 whose
// message is not exposed.
func AbortWithError(c *gin.Context, err error) {
	requestID := GetRequestID(c)
	var de *shared.DomainError
	if errors.As(err, &de) {
		c.AbortWithStatusJSON(dto.GetHTTPStatus(de.Code), dto.FromDomainError(de, requestID))
		return
	}

	_ = c.Error(err)
	logger.L(c.Request.Context()).Error("Request failed", zap.Error(err))
	c.AbortWithStatusJSON(dto.GetHTTPStatus(dto.ErrCodeInternal),
		dto.NewErrorResponse(dto.ErrCodeInternal, "An internal error occurred", requestID))
}
