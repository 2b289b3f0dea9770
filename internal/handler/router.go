package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth          *AuthHandler
	Teachers      *TeacherHandler
	Availability  *AvailabilityHandler
	Assessments   *AssessmentHandler
	ClassRequests *ClassRequestHandler
	Pricing       *PricingHandler
	Contact       *ContactHandler
	Chat          *ChatHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the API under prefix. Operational endpoints stay at the root.
func RegisterRoutes(r *gin.Engine, prefix string, auth middleware.Authenticator, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	authGroup := api.Group("/auth")
	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleTeacher, models.RoleStudent} {
		kind := authGroup.Group("/" + string(role))
		kind.POST("/login", h.Auth.Login(role))
		kind.POST("/forgot-password", h.Auth.ForgotPassword(role))
		kind.POST("/reset-password", h.Auth.ResetPassword(role))
		kind.PUT("/password", middleware.JWT(auth, role), h.Auth.ChangePassword)
	}
	authGroup.POST("/student/register", h.Auth.Register)

	api.POST("/assessments", h.Assessments.Create)
	api.POST("/contact", h.Contact.Submit)
	api.GET("/pricing", h.Pricing.Get)
	api.GET("/pricing/quote", h.Pricing.Quote)
	api.GET("/exports/download", h.Availability.Download)

	chat := api.Group("/chat/sessions")
	chat.POST("", h.Chat.Start)
	chat.GET("/:id", h.Chat.Get)
	chat.POST("/:id/messages", h.Chat.Send)

	admin := api.Group("/admin", middleware.JWT(auth, models.RoleAdmin))
	{
		admin.GET("/metrics", h.Metrics.Snapshot)

		admin.GET("/teachers", h.Teachers.List)
		admin.POST("/teachers", h.Teachers.Create)
		admin.GET("/teachers/:id", h.Teachers.Get)
		admin.PUT("/teachers/:id", h.Teachers.Update)
		admin.DELETE("/teachers/:id", h.Teachers.Delete)
		admin.GET("/teachers/:id/availability", h.Availability.ListForTeacher)
		admin.POST("/teachers/:id/availability", h.Availability.CreateForTeacher)

		admin.POST("/availability/check", h.Availability.Check)
		admin.POST("/availability/import", h.Availability.Import)
		admin.GET("/availability/export", h.Availability.Export)
		admin.PUT("/availability/:id", h.Availability.Update)
		admin.DELETE("/availability/:id", h.Availability.Delete)

		admin.GET("/assessments", h.Assessments.List)
		admin.GET("/assessments/:id", h.Assessments.Get)
		admin.POST("/assessments/:id/approve", h.Assessments.Approve)
		admin.POST("/assessments/:id/meetings", h.Assessments.FollowUp)
		admin.PUT("/assessments/:id/teachers", h.Assessments.Reassign)
		admin.PATCH("/assessments/:id/status", h.Assessments.UpdateStatus)

		admin.GET("/class-requests", h.ClassRequests.List)
		admin.GET("/class-requests/:id", h.ClassRequests.Get)
		admin.PATCH("/class-requests/:id/status", h.ClassRequests.UpdateStatus)
		admin.PATCH("/class-requests/:id/payment", h.ClassRequests.UpdatePayment)

		admin.PUT("/pricing", h.Pricing.Update)

		admin.GET("/contact-messages", h.Contact.List)
		admin.PATCH("/contact-messages/:id/handled", h.Contact.MarkHandled)
	}

	teacher := api.Group("/teacher", middleware.JWT(auth, models.RoleTeacher))
	{
		teacher.GET("/me", h.Teachers.Me)
		teacher.GET("/availability", h.Availability.ListOwn)
		teacher.POST("/availability", h.Availability.CreateOwn)
		teacher.PUT("/availability/:id", h.Availability.UpdateOwn)
		teacher.DELETE("/availability/:id", h.Availability.DeleteOwn)
		teacher.GET("/class-requests", h.ClassRequests.ListForTeacher)
		teacher.PATCH("/class-requests/:id/status", h.ClassRequests.UpdateStatusForTeacher)
	}

	student := api.Group("/student", middleware.JWT(auth, models.RoleStudent))
	{
		student.POST("/class-requests", h.ClassRequests.Create)
		student.GET("/class-requests", h.ClassRequests.ListForStudent)
		student.GET("/class-requests/:id", h.ClassRequests.GetForStudent)
		student.GET("/class-requests/:id/receipt", h.ClassRequests.Receipt)
	}
}
