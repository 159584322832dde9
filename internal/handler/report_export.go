package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/pkg/export"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

const dateLayout = "2006-01-02"

func wantsCSV(c *gin.Context) bool {
	return c.Query("format") == "csv"
}

func sendCSV(c *gin.Context, filename string, table export.Table) {
	body, err := export.CSV(table)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

func overdueTable(items []dto.OverdueEnrollment) export.Table {
	table := export.Table{Headers: []string{"enrollment_id", "student_id", "student_name", "session_name", "due_date", "days_overdue", "remaining_balance"}}
	for _, item := range items {
		table.Append(
			item.EnrollmentID,
			item.StudentID,
			item.StudentName,
			item.SessionName,
			item.DueDate.Format(dateLayout),
			strconv.Itoa(item.DaysOverdue),
			item.Remaining.StringFixed(2),
		)
	}
	return table
}

// pendingDuesTable flattens digests to one row per scheduled due.
func pendingDuesTable(digests []dto.PendingDuesDigest) export.Table {
	table := export.Table{Headers: []string{"student_id", "student_name", "rollno", "enrollment_id", "session_name", "entry_id", "due_date", "net_fee"}}
	for _, digest := range digests {
		roll := ""
		if digest.RollNo != nil {
			roll = *digest.RollNo
		}
		for _, due := range digest.Dues {
			table.Append(
				digest.StudentID,
				digest.StudentName,
				roll,
				due.EnrollmentID,
				due.SessionName,
				due.EntryID,
				due.DueDate.Format(dateLayout),
				due.NetFee.StringFixed(2),
			)
		}
	}
	return table
}
