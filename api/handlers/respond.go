package handlers

import (
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"oko-node/internal/apperr"
	"oko-node/internal/dto"
	"oko-node/internal/logger"
	"oko-node/internal/token"
)

// NewTokenHeader carries the rotated bearer token on successful step
// responses.
const NewTokenHeader = "X-New-Token"

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.Response{Success: true, Data: data})
}

// okWithNewToken responds successfully and rotates the caller's token
// via the X-New-Token header, so clients update credentials without
// body-shape coupling.
func okWithNewToken(c *gin.Context, tokens *token.Service, id *token.Identity, data interface{}) {
	if id != nil {
		if fresh, err := tokens.Rotate(*id); err == nil {
			c.Header(NewTokenHeader, fresh)
		} else {
			logger.Log.Errorf("Token rotation failed: %v", err)
		}
	}
	ok(c, data)
}

func fail(c *gin.Context, err error) {
	ae := apperr.From(err)
	if ae.Code == apperr.CodeInternal {
		logger.Log.Errorf("Request failed: %v", err)
	}
	c.JSON(apperr.HTTPStatus(ae.Code), dto.Response{
		Success: false,
		Code:    string(ae.Code),
		Msg:     ae.Msg,
	})
}

func badRequest(c *gin.Context, msg string) {
	fail(c, apperr.New(apperr.CodeInvalidRequest, "%s", msg))
}

func parseUUID(c *gin.Context, field, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		badRequest(c, field+" must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func parseHex(c *gin.Context, field, value string) ([]byte, bool) {
	if value == "" {
		return nil, true
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		badRequest(c, field+" must be hex")
		return nil, false
	}
	return b, true
}
