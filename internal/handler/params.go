package handler

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/handler/middleware"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/service"
)

func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s format", ierr.ErrValidation, name)
	}
	return id, nil
}

func currentUser(c *gin.Context) (uuid.UUID, error) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		return uuid.Nil, ierr.ErrUnauthorized
	}
	return id, nil
}

// bindError keeps validator errors intact so the error middleware can list
// the failing fields; anything else is a malformed body.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", ierr.ErrValidation, err)
}

func requestInfo(c *gin.Context) service.RequestInfo {
	return service.RequestInfo{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
