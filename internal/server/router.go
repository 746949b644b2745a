package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lamplight-apps/chapterboard/internal/appdata"
	"github.com/lamplight-apps/chapterboard/internal/auth"
	"github.com/lamplight-apps/chapterboard/internal/directory"
	"github.com/lamplight-apps/chapterboard/internal/population"
	"github.com/lamplight-apps/chapterboard/internal/records"
	"github.com/lamplight-apps/chapterboard/internal/scoring"
	"github.com/lamplight-apps/chapterboard/internal/syncer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const sessionContextKey = "chapterboard_session"

var (
	errMissingGoogleVerifier = errors.New("google verifier dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingController     = errors.New("sync controller dependency required")
	errMissingRecordStore    = errors.New("record store dependency required")
	errMissingLedger         = errors.New("population ledger dependency required")
	errMissingDirectory      = errors.New("directory dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// GoogleVerifier validates external identity-provider tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

// SessionTokenManager issues and validates backend session tokens.
type SessionTokenManager interface {
	IssueBackendToken(ctx context.Context, session auth.Session) (string, int64, error)
	ValidateToken(token string) (auth.Session, error)
}

// ScoringOptions fixes the competition parameters the score endpoints use.
type ScoringOptions struct {
	Window   appdata.Window
	Location *time.Location
	DailyCap int
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	GoogleVerifier GoogleVerifier
	TokenManager   SessionTokenManager
	Controller     *syncer.Controller
	Records        *records.Store
	Ledger         *population.Ledger
	Directory      *directory.Directory
	Scoring        ScoringOptions
	MetricsEnabled bool
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the service.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Controller == nil {
		return nil, errMissingController
	}
	if deps.Records == nil {
		return nil, errMissingRecordStore
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Directory == nil {
		return nil, errMissingDirectory
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:   deps.GoogleVerifier,
		tokens:     deps.TokenManager,
		controller: deps.Controller,
		records:    deps.Records,
		ledger:     deps.Ledger,
		directory:  deps.Directory,
		scoring:    deps.Scoring,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.POST("/auth/google", handler.handleGoogleAuth)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/state", handler.handleState)
	protected.POST("/records", handler.handleSubmitRecord)
	protected.GET("/standings", handler.handleStandings)
	protected.GET("/series", handler.handleSeries)
	protected.POST("/profile/department", handler.handleAssignDepartment)
	protected.POST("/sync/refresh", handler.handleRefresh)

	admin := protected.Group("/")
	admin.Use(handler.requireAdmin)
	admin.GET("/leaderboard/individual", handler.handleIndividualLeaderboard)
	admin.POST("/admin/departments", handler.handleAddDepartment)
	admin.DELETE("/admin/departments/:id", handler.handleRemoveDepartment)
	admin.POST("/admin/populations", handler.handleApplyPopulations)
	admin.POST("/admin/restore", handler.handleRestoreBackup)

	return router, nil
}

type httpHandler struct {
	verifier   GoogleVerifier
	tokens     SessionTokenManager
	controller *syncer.Controller
	records    *records.Store
	ledger     *population.Ledger
	directory  *directory.Directory
	scoring    ScoringOptions
	logger     *zap.Logger
}

func (h *httpHandler) scoringInput() scoring.Input {
	return scoring.Input{
		Records:     h.records.Snapshot(),
		Departments: h.directory.Departments(),
		Populations: h.ledger,
		Window:      h.scoring.Window,
		Location:    h.scoring.Location,
		DailyCap:    h.scoring.DailyCap,
	}
}

type authRequestPayload struct {
	IDToken  string `json:"id_token"`
	AdminKey string `json:"admin_key,omitempty"`
}

type authResponsePayload struct {
	AccessToken string              `json:"access_token"`
	ExpiresIn   int64               `json:"expires_in"`
	TokenType   string              `json:"token_type"`
	Profile     appdata.UserProfile `json:"profile"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	profile, created, err := h.directory.EnsureProfile(directory.IdentityClaims{
		Subject:     claims.Subject,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
	})
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	isAdmin := profile.IsAdmin
	if request.AdminKey != "" && h.directory.CheckAdminKey(request.AdminKey) {
		h.directory.MarkAdmin(profile.UID)
		profile.IsAdmin = true
		isAdmin = true
	}

	if created {
		if err := h.controller.PushState(c.Request.Context()); err != nil {
			h.logger.Warn("profile persist failed", zap.Error(err))
		}
	}

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), auth.Session{
		Subject: profile.UID,
		IsAdmin: isAdmin,
	})
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Profile:     profile,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sync": h.controller.CurrentStatus()})
}

func (h *httpHandler) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.SnapshotDocument())
}

type recordRequestPayload struct {
	Chapters      int    `json:"chapters"`
	Date          string `json:"date"`
	DepartmentID  string `json:"department_id,omitempty"`
	IsAdminRecord bool   `json:"is_admin_record,omitempty"`
}

type recordResponsePayload struct {
	Changed bool                   `json:"changed"`
	Deleted bool                   `json:"deleted,omitempty"`
	Record  *appdata.ReadingRecord `json:"record,omitempty"`
}

func (h *httpHandler) handleSubmitRecord(c *gin.Context) {
	session := h.sessionFrom(c)

	var request recordRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	chapters, err := appdata.NewChapterCount(request.Chapters)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_chapters"})
		return
	}
	day, err := appdata.NewDayKey(request.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	submission := records.Submission{
		Chapters:      chapters,
		Day:           day,
		IsAdminRecord: request.IsAdminRecord,
	}

	if request.IsAdminRecord {
		if !session.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin_required"})
			return
		}
		departmentID, err := appdata.NewDepartmentID(request.DepartmentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "department_required"})
			return
		}
		submission.DepartmentID = departmentID
	} else {
		profile, ok := h.directory.Profile(session.Subject)
		if !ok || profile.DepartmentID == "" {
			c.JSON(http.StatusConflict, gin.H{"error": "onboarding_incomplete"})
			return
		}
		userID, err := appdata.NewUserID(profile.UID)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "onboarding_incomplete"})
			return
		}
		departmentID, err := appdata.NewDepartmentID(profile.DepartmentID)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "onboarding_incomplete"})
			return
		}
		submission.UserID = userID
		submission.UserName = profile.DisplayName
		submission.DepartmentID = departmentID
	}

	result, err := h.controller.SaveSubmission(c.Request.Context(), submission)
	if err != nil {
		// A failed explicit save must surface: the user's write may not have
		// landed remotely even though it applied locally.
		h.logger.Error("record save failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "save_failed"})
		return
	}

	response := recordResponsePayload{Changed: result.Changed, Deleted: result.Deleted}
	if result.Changed && !result.Deleted {
		record := result.Record
		response.Record = &record
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleStandings(c *gin.Context) {
	mode, err := scoring.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":      mode,
		"standings": scoring.Standings(h.scoringInput(), mode),
	})
}

func (h *httpHandler) handleSeries(c *gin.Context) {
	mode, err := scoring.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mode"})
		return
	}
	granularity, err := appdata.ParseGranularity(c.Query("granularity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_granularity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":        mode,
		"granularity": granularity,
		"series":      scoring.Series(h.scoringInput(), mode, granularity),
	})
}

func (h *httpHandler) handleIndividualLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"leaderboard": scoring.IndividualTotals(h.scoringInput(), h.directory.Profiles()),
	})
}

type assignDepartmentPayload struct {
	DepartmentID string `json:"department_id"`
}

func (h *httpHandler) handleAssignDepartment(c *gin.Context) {
	session := h.sessionFrom(c)

	var request assignDepartmentPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.DepartmentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.directory.AssignDepartment(session.Subject, request.DepartmentID)
	if errors.Is(err, directory.ErrUnknownDepartment) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_department"})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.controller.PushState(c.Request.Context()); err != nil {
		h.logger.Error("profile save failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "save_failed"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	err := h.controller.Refresh(c.Request.Context())
	switch {
	case errors.Is(err, syncer.ErrRefreshSuppressed):
		c.JSON(http.StatusOK, gin.H{"status": "suppressed"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "fetch_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
	}
}

type departmentPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

func (h *httpHandler) handleAddDepartment(c *gin.Context) {
	var request departmentPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ID == "" || request.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.directory.AddDepartment(appdata.Department{
		ID:    request.ID,
		Name:  request.Name,
		Color: request.Color,
		Emoji: request.Emoji,
	})
	if errors.Is(err, directory.ErrDuplicateDepartment) {
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_department"})
		return
	}

	if err := h.controller.PushState(c.Request.Context()); err != nil {
		h.logger.Error("department save failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "save_failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (h *httpHandler) handleRemoveDepartment(c *gin.Context) {
	if !h.directory.RemoveDepartment(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_department"})
		return
	}

	if err := h.controller.PushState(c.Request.Context()); err != nil {
		h.logger.Error("department save failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "save_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

type populationsPayload struct {
	EffectiveDate string         `json:"effective_date"`
	Populations   map[string]int `json:"populations"`
}

func (h *httpHandler) handleApplyPopulations(c *gin.Context) {
	var request populationsPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Populations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	day, err := appdata.NewDayKey(request.EffectiveDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	for _, count := range request.Populations {
		if count <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_population"})
			return
		}
	}

	h.ledger.Apply(day, request.Populations)

	if err := h.controller.PushState(c.Request.Context()); err != nil {
		h.logger.Error("population save failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "save_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (h *httpHandler) handleRestoreBackup(c *gin.Context) {
	if err := h.controller.RestoreBackup(c.Request.Context()); err != nil {
		h.logger.Error("backup restore failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "restore_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	session, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, session)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	if !h.sessionFrom(c).IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_required"})
		return
	}
	c.Next()
}

func (h *httpHandler) sessionFrom(c *gin.Context) auth.Session {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return auth.Session{}
	}
	session, _ := value.(auth.Session)
	return session
}
