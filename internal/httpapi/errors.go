package httpapi

import (
	"github.com/gin-gonic/gin"

	"rocketcore/internal/apperr"
	"rocketcore/pkg/model"
)

// writeError maps an error to the §7/§6 user-visible failure format:
// {error: {code, message, details?}}.
func writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.CodeInternal, "internal error", err)
	}

	body := gin.H{"code": string(appErr.Code), "message": appErr.Message}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	c.JSON(appErr.HTTPStatus(), gin.H{"error": body})
}

// currentUser resolves the acting user from the X-User-ID header, the way the workflow runtime
// endpoints do per §6; absent the header, writes proceed with no authenticated user.
func currentUser(c *gin.Context) *model.User {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		return nil
	}
	return &model.User{ID: id}
}
