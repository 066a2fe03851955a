// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
)

// respondError writes err as {"code","message"}. AppErrors keep their status;
// anything else is an internal error with the message hidden.
func respondError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		status := appErr.HTTPStatus()
		msg := appErr.Message
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(status, gin.H{
			"code":    appErr.Code,
			"message": msg,
		})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    errors.ErrCodeInternal,
		"message": "Internal server error",
	})
}

// parseUintParam reads a positive numeric path parameter
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid " + name,
		})
		return 0, false
	}
	return uint(v), true
}

// queryInt reads an integer query parameter, returning def when absent or
// malformed
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
