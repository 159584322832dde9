package handler

import "github.com/gin-gonic/gin"

// Handlers groups the route handlers mounted under the API prefix.
type Handlers struct {
	Students      *StudentHandler
	Sessions      *SessionHandler
	Enrollments   *EnrollmentHandler
	Ledger        *LedgerHandler
	Reports       *ReportHandler
	Notifications *NotificationHandler
}

// RegisterRoutes mounts the ledger API on group. Middleware is the caller's concern.
func RegisterRoutes(group *gin.RouterGroup, h Handlers) {
	students := group.Group("/students")
	students.GET("", h.Students.List)
	students.POST("", h.Students.Create)
	students.POST("/reconcile", h.Sessions.Reconcile)
	students.GET("/:id", h.Students.Get)
	students.GET("/:id/balance", h.Students.Balance)
	students.POST("/:id/freeze", h.Students.Freeze)
	students.POST("/:id/unfreeze", h.Students.Unfreeze)
	students.DELETE("/:id", h.Students.Delete)

	sessions := group.Group("/sessions")
	sessions.GET("", h.Sessions.List)
	sessions.POST("", h.Sessions.Create)
	sessions.POST("/expire", h.Sessions.Expire)
	sessions.POST("/restore", h.Sessions.Restore)
	sessions.GET("/:id", h.Sessions.Get)
	sessions.PUT("/:id/status", h.Sessions.SetStatus)

	enrollments := group.Group("/enrollments")
	enrollments.POST("", h.Enrollments.Enroll)
	enrollments.PUT("/:id", h.Enrollments.Update)
	enrollments.POST("/:id/withdraw", h.Enrollments.Withdraw)
	enrollments.DELETE("/:id", h.Enrollments.Delete)
	enrollments.GET("/:id/balance", h.Enrollments.Balance)
	enrollments.GET("/:id/ledger", h.Ledger.Entries)
	enrollments.POST("/:id/payments", h.Ledger.RecordPayment)
	enrollments.POST("/:id/dues", h.Ledger.ScheduleDue)
	enrollments.POST("/:id/installments", h.Ledger.PlanInstallments)

	group.POST("/ledger/:entryId/settle", h.Ledger.SettleDue)
	group.POST("/renewals/run", h.Reports.RunRenewals)

	reports := group.Group("/reports")
	reports.GET("/overdue", h.Reports.Overdue)
	reports.GET("/pending-dues", h.Reports.PendingDues)

	notifications := group.Group("/notifications")
	notifications.GET("", h.Notifications.Unread)
	notifications.POST("/read", h.Notifications.MarkRead)
}
