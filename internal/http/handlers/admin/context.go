package admin

import (
	"strconv"
	"time"

	handlershared "github.com/smileref/smileref/internal/http/handlers/shared"
	"github.com/smileref/smileref/internal/http/response"

	"github.com/gin-gonic/gin"
)

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}

// parseIDParam 解析路径中的数字 ID，失败时已写入错误响应。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || raw == 0 {
		respondError(c, response.CodeBadRequest, "Invalid id", nil)
		return 0, false
	}
	return uint(raw), true
}

func parseTimeNullable(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
