package handler

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/scorehub/scorehub-api/internal/dto"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := dto.RegisterValidations(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
