package admin

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/service"

	"github.com/gin-gonic/gin"
)

const importMaxRows = 5000

// ImportUsers 批量导入用户
// CSV 列顺序：email,name,phone,staff；带 email 表头的首行自动跳过
func (h *Handler) ImportUsers(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, response.CodeBadRequest, "CSV file is required", err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	results := make([]service.ImportRowResult, 0)
	created := 0
	skipped := 0
	failed := 0
	rowIndex := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			respondError(c, response.CodeBadRequest, "Malformed CSV file", err)
			return
		}
		rowIndex++
		if rowIndex > importMaxRows {
			respondError(c, response.CodeBadRequest, "Too many rows in one upload", nil)
			return
		}
		if len(record) == 0 {
			continue
		}

		email := strings.TrimSpace(record[0])
		if email == "" {
			continue
		}
		if rowIndex == 1 && strings.EqualFold(email, "email") {
			continue
		}

		name := csvField(record, 1)
		phone := csvField(record, 2)
		staff := csvField(record, 3)

		result := service.ImportRowResult{Email: email}
		user, isNew, err := h.AdminService.ImportUser(c.Request.Context(), email, name, phone, staff)
		switch {
		case err != nil:
			result.Error = err.Error()
			failed++
		case isNew:
			result.Email = user.Email
			result.Created = true
			created++
		default:
			result.Email = user.Email
			result.Skipped = true
			skipped++
		}
		results = append(results, result)
	}

	requestLog(c).Infow("admin_users_imported",
		"created", created,
		"skipped", skipped,
		"failed", failed,
	)
	response.Success(c, gin.H{
		"created": created,
		"skipped": skipped,
		"failed":  failed,
		"rows":    results,
	})
}

func csvField(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
