package apperr

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body written for any failed admin/health
// request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AbortWithError writes the mapped status/body for err and aborts the gin
// context, mirroring the teacher's AbortWithError helper.
func AbortWithError(c *gin.Context, err error) {
	var ae *AppError
	if as, ok := err.(*AppError); ok {
		ae = as
	} else {
		ae = NewInternal(err)
	}
	c.JSON(ae.StatusCode(), ErrorResponse{
		Error:   string(ae.Kind),
		Code:    string(ae.Kind),
		Message: ae.Message,
	})
	c.Abort()
}

// ErrorHandler is gin middleware that recovers panics in HTTP handlers into
// a 500 response, matching the teacher's CustomRecovery pattern; it never
// lets a single request crash the process.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered in http handler",
			zap.Any("recovered", recovered),
			zap.String("path", c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   string(Internal),
			Code:    string(Internal),
			Message: "internal error",
		})
		c.Abort()
	})
}
