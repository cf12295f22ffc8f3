package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"Lee_Social/internal/service"
)

// fail 把业务错误分类映射到 HTTP 状态码
func fail(c *gin.Context, err error) {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
		pe *service.PermissionError
		pf *service.PartialFailureError
		te *service.TransientError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"msg": ve.Error()})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"msg": nf.Error()})
	case errors.As(err, &pe):
		c.JSON(http.StatusForbidden, gin.H{"msg": pe.Error()})
	case errors.As(err, &pf):
		c.JSON(http.StatusConflict, gin.H{"msg": pf.Error(), "committed": pf.Committed, "failed": pf.Failed})
	case errors.As(err, &te):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"msg": te.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
	}
}
