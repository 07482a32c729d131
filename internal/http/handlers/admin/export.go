package admin

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/smileref/smileref/internal/http/response"

	"github.com/gin-gonic/gin"
)

var referralExportHeader = []string{
	"ID", "Referrer Email", "Referrer Code", "Referred Email",
	"Status", "Earnings", "Created At", "Completed At",
}

// ExportReferrals 导出全量推荐记录为 CSV
func (h *Handler) ExportReferrals(c *gin.Context) {
	rows, err := h.AdminService.ExportReferrals(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to export referrals", err)
		return
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(referralExportHeader); err != nil {
		respondError(c, response.CodeInternal, "Failed to export referrals", err)
		return
	}
	for _, row := range rows {
		completedAt := ""
		if row.CompletedAt != nil {
			completedAt = row.CompletedAt.Format(time.RFC3339)
		}
		record := []string{
			fmt.Sprintf("%d", row.ID),
			row.ReferrerEmail,
			row.ReferrerCode,
			row.ReferredEmail,
			row.Status,
			row.Earnings.String(),
			row.CreatedAt.Format(time.RFC3339),
			completedAt,
		}
		if err := writer.Write(record); err != nil {
			respondError(c, response.CodeInternal, "Failed to export referrals", err)
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		respondError(c, response.CodeInternal, "Failed to export referrals", err)
		return
	}

	filename := fmt.Sprintf("referrals_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
