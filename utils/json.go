package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// Fail writes a 400 error JSON response.
func Fail(c *gin.Context, err error) {
	FailWithStatus(c, http.StatusBadRequest, err.Error())
}

// FailWithStatus writes an error JSON response and aborts the chain.
func FailWithStatus(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code": -1,
		"msg":  msg,
	})
}
