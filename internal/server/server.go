package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	"github.com/timberline-hq/timberline/internal/auth/session"
	"github.com/timberline-hq/timberline/internal/authorization"
	biddingdomain "github.com/timberline-hq/timberline/internal/bidding/domain"
	"github.com/timberline-hq/timberline/internal/config"
	documentdomain "github.com/timberline-hq/timberline/internal/document/domain"
	invitationdomain "github.com/timberline-hq/timberline/internal/invitation/domain"
	notificationdomain "github.com/timberline-hq/timberline/internal/notification/domain"
	"github.com/timberline-hq/timberline/internal/observability"
	obslogger "github.com/timberline-hq/timberline/internal/observability/logger"
	obsmetrics "github.com/timberline-hq/timberline/internal/observability/metrics"
	obstracing "github.com/timberline-hq/timberline/internal/observability/tracing"
	orderdomain "github.com/timberline-hq/timberline/internal/order/domain"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	"github.com/timberline-hq/timberline/internal/ratelimit"
	reportdomain "github.com/timberline-hq/timberline/internal/report/domain"
	timelinedomain "github.com/timberline-hq/timberline/internal/timeline/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case status >= http.StatusBadRequest:
		return "client", payload.Type
	default:
		return "", payload.Type
	}
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	db              *gorm.DB
	genID           *snowflake.Node
	sessions        *session.Manager
	authSvc         authdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	projectSvc      projectdomain.Service
	invitationSvc   invitationdomain.Service
	timelineSvc     timelinedomain.Service
	documentSvc     documentdomain.Service
	biddingSvc      biddingdomain.Service
	orderSvc        orderdomain.Service
	notificationSvc notificationdomain.Service
	reportSvc       reportdomain.Service
	obsMetrics      *obsmetrics.Metrics
	resolveLimiter  *ratelimit.ResolveLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	DB              *gorm.DB
	GenID           *snowflake.Node
	Sessions        *session.Manager
	AuthSvc         authdomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	ProjectSvc      projectdomain.Service
	InvitationSvc   invitationdomain.Service
	TimelineSvc     timelinedomain.Service
	DocumentSvc     documentdomain.Service
	BiddingSvc      biddingdomain.Service
	OrderSvc        orderdomain.Service
	NotificationSvc notificationdomain.Service
	ReportSvc       reportdomain.Service
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
	ResolveLimiter  *ratelimit.ResolveLimiter  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		db:              p.DB,
		genID:           p.GenID,
		sessions:        p.Sessions,
		authSvc:         p.AuthSvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		projectSvc:      p.ProjectSvc,
		invitationSvc:   p.InvitationSvc,
		timelineSvc:     p.TimelineSvc,
		documentSvc:     p.DocumentSvc,
		biddingSvc:      p.BiddingSvc,
		orderSvc:        p.OrderSvc,
		notificationSvc: p.NotificationSvc,
		reportSvc:       p.ReportSvc,
		obsMetrics:      p.ObsMetrics,
		resolveLimiter:  p.ResolveLimiter,
	}

	s.registerAuthRoutes()
	s.registerPublicRoutes()
	s.registerAPIRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) registerPublicRoutes() {
	// The invite link resolver is the only unauthenticated API surface.
	s.engine.GET("/api/invitations/:token", s.ResolveRateLimit(), s.ResolveInvitation)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Projects --------
	api.POST("/projects", s.CreateProject)
	api.GET("/projects", s.ListProjects)
	api.GET("/projects/:id", s.GetProject)
	api.PATCH("/projects/:id", s.UpdateProject)
	api.POST("/projects/:id/status", s.UpdateProjectStatus)
	api.GET("/projects/:id/members", s.ListProjectMembers)
	api.DELETE("/projects/:id/members/:userId", s.RemoveProjectMember)

	// -------- Invitations --------
	api.POST("/projects/:id/invitations", s.InviteProjectMember)
	api.GET("/projects/:id/invitations", s.ListProjectInvitations)
	api.DELETE("/projects/:id/invitations/:invitationId", s.RevokeInvitation)
	api.POST("/invitations/:token/accept", s.AcceptInvitation)
	api.POST("/invitations/:token/decline", s.DeclineInvitation)

	// -------- Timeline --------
	api.POST("/projects/:id/timeline", s.AppendTimelineEntry)
	api.GET("/projects/:id/timeline", s.ListTimeline)

	// -------- Documents --------
	api.POST("/projects/:id/documents", s.UploadDocuments)
	api.GET("/projects/:id/documents", s.ListDocuments)
	api.GET("/documents/:docId", s.GetDocument)
	api.GET("/documents/:docId/download", s.DownloadDocument)
	api.DELETE("/documents/:docId", s.DeleteDocument)

	// -------- Service requests and bids --------
	api.POST("/projects/:id/service-requests", s.CreateServiceRequest)
	api.GET("/projects/:id/service-requests", s.ListServiceRequests)
	api.GET("/service-requests/:requestId", s.GetServiceRequest)
	api.POST("/service-requests/:requestId/publish", s.PublishServiceRequest)
	api.POST("/service-requests/:requestId/bids", s.SubmitBid)
	api.GET("/service-requests/:requestId/bids", s.ListBids)
	api.POST("/bids/:bidId/withdraw", s.WithdrawBid)

	// -------- Material orders --------
	api.POST("/projects/:id/orders", s.CreateOrder)
	api.GET("/projects/:id/orders", s.ListOrders)
	api.GET("/orders/:orderId", s.GetOrder)
	api.POST("/orders/:orderId/status", s.UpdateOrderStatus)
	api.POST("/orders/:orderId/cancel", s.CancelOrder)

	// -------- Reports --------
	api.GET("/projects/:id/report", s.ProjectReport)
	api.GET("/projects/:id/report/pdf", s.ExportProjectReportPDF)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/:notificationId/read", s.MarkNotificationRead)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired(), s.AdminRequired())

	admin.GET("/audit-logs", s.ListAuditLogs)

	// Awarding and rejecting bids is back-office work.
	admin.POST("/service-requests/:requestId/award", s.AwardBid)
	admin.POST("/bids/:bidId/reject", s.RejectBid)
}
