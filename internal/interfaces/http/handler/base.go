package handler

import (
	"net/http"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/interfaces/http/dto"
	"github.com/costgov/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// BadRequest sends a 400 response for malformed input
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(shared.CodeInvalidInput, message, middleware.GetRequestID(c)))
}

// BindError answers a failed ShouldBind call, listing field errors when
// the validator produced them
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	details := middleware.ValidationDetails(err)
	if details == nil {
		h.BadRequest(c, "Malformed request: "+err.Error())
		return
	}
	resp := dto.NewErrorResponse(shared.CodeValidation, "Request validation failed", middleware.GetRequestID(c))
	resp.Error.Details = details
	c.JSON(http.StatusBadRequest, resp)
}

// HandleError converts an error returned by a service into a response
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	middleware.AbortWithError(c, err)
}

// actor returns the authenticated caller, answering 401 when missing
func (h *BaseHandler) actor(c *gin.Context) (governance.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Authentication required", middleware.GetRequestID(c)))
		return governance.Actor{}, false
	}
	return actor, true
}

// requestMeta captures the caller details recorded in the audit ledger
func requestMeta(c *gin.Context, actor governance.Actor) governance.RequestMeta {
	return governance.RequestMeta{
		ActorID:   actor.ID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// uuidParam parses a path parameter, answering 400 when invalid
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
