package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/consulkit/discovery"
	"github.com/kbukum/consulkit/errors"
)

// Lookup returns a handler that resolves the ":name" path parameter through
// r and answers with the picked instance. Resolver failures keep the
// status their AppError carries, so an unknown service is a 404.
func Lookup(r discovery.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		inst, err := r.Lookup(c.Request.Context(), name)
		if err != nil {
			status := http.StatusInternalServerError
			code := errors.ErrCodeInternal
			if appErr, ok := errors.AsAppError(err); ok {
				status, code = appErr.HTTPStatus, appErr.Code
			}
			c.JSON(status, gin.H{"service": name, "code": code, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"service":   name,
			"id":        inst.ID,
			"address":   inst.Address,
			"port":      inst.Port,
			"tags":      inst.Tags,
			"host_port": inst.HostPort(),
		})
	}
}
