package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/identity"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

type HandlerManager struct {
	userHandler       *UserHandler
	teacherHandler    *TeacherHandler
	courseHandler     *CourseHandler
	enrollmentHandler *EnrollmentHandler
	paymentHandler    *PaymentHandler
	authMiddleware    *CasdoorAuthMiddleware
	health            func(ctx context.Context) error
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	identityProvider identity.Provider,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		userHandler:       NewUserHandler(serviceManager.User(), logger),
		teacherHandler:    NewTeacherHandler(serviceManager.Teacher(), logger),
		courseHandler:     NewCourseHandler(serviceManager.Course(), logger),
		enrollmentHandler: NewEnrollmentHandler(serviceManager.Enrollment(), logger),
		paymentHandler:    NewPaymentHandler(serviceManager.Payment(), serviceManager.Export(), logger),
		authMiddleware:    NewCasdoorAuthMiddleware(identityProvider, serviceManager.User(), logger),
		health:            serviceManager.HealthCheck,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	auth := hm.authMiddleware
	adminOnly := auth.RequireRoleMiddleware(models.RoleAdmin)

	// Course catalogue is readable without signing in
	public := router.Group("/api/v1")
	public.Use(auth.OptionalAuthMiddleware())
	{
		public.GET("/courses", hm.courseHandler.ListCourses)
		public.GET("/courses/:id", hm.courseHandler.GetCourse)
	}

	v1 := router.Group("/api/v1")
	v1.Use(auth.AuthMiddleware())

	// Registration is the one call allowed before a user record exists
	v1.POST("/users", hm.userHandler.CreateUser)

	registered := v1.Group("")
	registered.Use(auth.RequireUser())
	{
		users := registered.Group("/users")
		{
			users.GET("", hm.userHandler.ListUsers)
			users.GET("/:email", hm.userHandler.GetUser)
			users.PUT("/:email/profile", hm.userHandler.UpdateProfile)
			users.PUT("/:email/role", adminOnly, hm.userHandler.UpdateRole)
			users.DELETE("/:email", adminOnly, hm.userHandler.DeleteUser)
		}

		teachers := registered.Group("/teachers")
		{
			teachers.GET("", adminOnly, hm.teacherHandler.ListApplications)
			teachers.POST("", auth.RequireRoleMiddleware(models.RoleStudent), hm.teacherHandler.Apply)
			teachers.PUT("/accept/:id", adminOnly, hm.teacherHandler.Accept)
			teachers.PUT("/reject/:id", adminOnly, hm.teacherHandler.Reject)
		}

		courses := registered.Group("/courses")
		{
			courses.POST("", auth.RequireRoleMiddleware(models.RoleTeacher), hm.courseHandler.CreateCourse)
			courses.PUT("/:id", hm.courseHandler.UpdateCourse)
			courses.DELETE("/:id", hm.courseHandler.DeleteCourse)
			courses.PUT("/accept/:id", adminOnly, hm.courseHandler.AcceptCourse)
			courses.PUT("/reject/:id", adminOnly, hm.courseHandler.RejectCourse)
		}

		enrollments := registered.Group("/enrollments")
		{
			enrollments.GET("", hm.enrollmentHandler.ListEnrollments)
			enrollments.GET("/:id", hm.enrollmentHandler.GetEnrollment)
			enrollments.POST("", auth.RequireRoleMiddleware(models.RoleStudent), hm.enrollmentHandler.RequestEnrollment)
			// Course teacher or admin; checked per enrollment by the service
			enrollments.PUT("/accept/:id", hm.enrollmentHandler.AcceptEnrollment)
			enrollments.PUT("/reject/:id", hm.enrollmentHandler.RejectEnrollment)
		}

		payments := registered.Group("/payments")
		{
			payments.POST("/intent", hm.paymentHandler.CreateIntent)
			payments.POST("", hm.paymentHandler.ConfirmPayment)
			payments.GET("", hm.paymentHandler.ListPayments)
			payments.GET("/export", adminOnly, hm.paymentHandler.ExportReport)
			payments.DELETE("/:id", hm.paymentHandler.DeletePayment)
		}
	}

	router.GET("/health", hm.Health)
}

// Health reports database and cache reachability
func (hm *HandlerManager) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := hm.health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "learnio",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "learnio",
	})
}
