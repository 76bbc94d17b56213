package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"taskflow/internal/auth"
	"taskflow/internal/domain/errors"
	"taskflow/internal/domain/models"
	"taskflow/internal/logging"
	"taskflow/internal/service"

	"github.com/gin-gonic/gin"
)

const Version = "1.0.0"

type AccountService interface {
	Register(ctx context.Context, email, password string) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	DeleteAccount(ctx context.Context, ownerID string) error
}

type TaskService interface {
	List(ctx context.Context, ownerID string) ([]models.Task, error)
	Get(ctx context.Context, ownerID, taskID string) (*models.Task, error)
	Create(ctx context.Context, ownerID string, in service.CreateTaskInput) (*models.Task, error)
	Update(ctx context.Context, ownerID, taskID string, patch service.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, ownerID, taskID string) (*models.Task, error)
}

type TaskAPI struct {
	httpSrv  *http.Server
	accounts AccountService
	tasks    TaskService
	tokens   TokenVerifier
	cfg      *Config
	log      logging.Logger
}

func NewTaskAPI(accounts AccountService, tasks TaskService, tokens TokenVerifier, cfg *Config, log logging.Logger) *TaskAPI {
	if accounts == nil || tasks == nil || tokens == nil || cfg == nil || log == nil {
		return nil
	}

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		accounts: accounts,
		tasks:    tasks,
		tokens:   tokens,
		cfg:      cfg,
		log:      log,
	}
	api.configRoutes()

	return api
}

// Start blocks serving HTTP until Shutdown is called.
func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternal
	}
	if err := api.httpSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

func (api *TaskAPI) configRoutes() {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(
		gin.CustomRecovery(api.recovered),
		RequestLogger(api.log),
		CORS(api.cfg.AllowedOrigins),
		GzipRequestDecompress(),
		GzipResponseCompress(),
	)

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, errorBody("route not found"))
	})
	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, errorBody("method not allowed"))
	})

	router.GET("/", api.health)

	gate := AuthRequired(api.tokens, api.cfg.CookieName, api.log)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", api.register)
		authGroup.POST("/login", api.login)
		authGroup.POST("/logout", api.logout)
		authGroup.DELETE("/delete-account", gate, api.deleteAccount)
	}

	tasks := router.Group("/tasks", gate)
	{
		tasks.GET("", api.getTasks)
		tasks.POST("", api.createTask)
		tasks.GET("/:id", api.getTaskByID)
		tasks.PUT("/:id", api.updateTask)
		tasks.DELETE("/:id", api.deleteTask)
	}

	api.httpSrv.Handler = router
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func errorBody(msg string) response {
	return response{Success: false, Error: msg}
}

func (api *TaskAPI) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "task manager API is running",
		"version": Version,
	})
}

func (api *TaskAPI) register(ctx *gin.Context) {
	var req models.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.respondError(ctx, errors.ErrBadRequest)
		return
	}

	session, err := api.accounts.Register(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		api.respondError(ctx, err)
		return
	}

	api.setSessionCookie(ctx, session)
	ctx.JSON(http.StatusCreated, response{
		Success: true,
		Message: "user registered",
		Data:    gin.H{"user": session.User.Public()},
	})
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.respondError(ctx, errors.ErrBadRequest)
		return
	}

	session, err := api.accounts.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		api.respondError(ctx, err)
		return
	}

	api.setSessionCookie(ctx, session)
	ctx.JSON(http.StatusOK, response{
		Success: true,
		Message: "login successful",
		Data:    gin.H{"user": session.User.Public()},
	})
}

// logout only clears the cookie; the token itself stays valid until expiry.
func (api *TaskAPI) logout(ctx *gin.Context) {
	api.clearSessionCookie(ctx)
	ctx.JSON(http.StatusOK, response{Success: true, Message: "logged out"})
}

func (api *TaskAPI) deleteAccount(ctx *gin.Context) {
	id, ok := caller(ctx)
	if !ok {
		api.respondError(ctx, errors.ErrAuthenticationRequired)
		return
	}

	if err := api.accounts.DeleteAccount(ctx.Request.Context(), id.UserID); err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, errorBody("account not found"))
			return
		}
		api.respondError(ctx, err)
		return
	}

	api.clearSessionCookie(ctx)
	ctx.JSON(http.StatusOK, response{Success: true, Message: "account deleted"})
}

func (api *TaskAPI) getTasks(ctx *gin.Context) {
	id, ok := caller(ctx)
	if !ok {
		api.respondError(ctx, errors.ErrAuthenticationRequired)
		return
	}

	tasks, err := api.tasks.List(ctx.Request.Context(), id.UserID)
	if err != nil {
		api.respondError(ctx, err)
		return
	}

	count := len(tasks)
	ctx.JSON(http.StatusOK, response{Success: true, Count: &count, Data: tasks})
}

func (api *TaskAPI) getTaskByID(ctx *gin.Context) {
	id, ok := caller(ctx)
	if !ok {
		api.respondError(ctx, errors.ErrAuthenticationRequired)
		return
	}

	task, err := api.tasks.Get(ctx.Request.Context(), id.UserID, ctx.Param("id"))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, response{Success: true, Data: task})
}

func (api *TaskAPI) createTask(ctx *gin.Context) {
	id, ok := caller(ctx)
	if !ok {
		api.respondError(ctx, errors.ErrAuthenticationRequired)
		return
	}

	var req models.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.respondError(ctx, errors.ErrBadRequest)
		return
	}

	task, err := api.tasks.Create(ctx.Request.Context(), id.UserID, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, response{Success: true, Message: "task created", Data: task})
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	id, ok := caller(ctx)
	if !ok {
		api.respondError(ctx, errors.ErrAuthenticationRequired)
		return
	}

	var req models.UpdateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.respondError(ctx, errors.ErrBadRequest)
		return
	}

	task, err := api.tasks.Update(ctx.Request.Context(), id.UserID, ctx.Param("id"), service.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, response{Success: true, Message: "task updated", Data: task})
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	id, ok := caller(ctx)
	if !ok {
		api.respondError(ctx, errors.ErrAuthenticationRequired)
		return
	}

	task, err := api.tasks.Delete(ctx.Request.Context(), id.UserID, ctx.Param("id"))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, response{Success: true, Message: "task deleted", Data: task})
}

// caller returns the identity the gate attached to the request.
func caller(ctx *gin.Context) (auth.Identity, bool) {
	v, exists := ctx.Get(identityKey)
	if !exists {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id.UserID != ""
}

func (api *TaskAPI) setSessionCookie(ctx *gin.Context, session *service.Session) {
	maxAge := int(time.Until(session.ExpiresAt) / time.Second)
	if maxAge < 1 {
		maxAge = int(api.cfg.TokenTTL / time.Second)
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(api.cfg.CookieName, session.Token, maxAge, "/", "", api.cfg.Production(), true)
}

func (api *TaskAPI) clearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(api.cfg.CookieName, "", -1, "/", "", api.cfg.Production(), true)
}

var validationMessages = []struct {
	err error
	msg string
}{
	{errors.ErrInvalidEmail, "invalid email"},
	{errors.ErrInvalidPassword, "invalid password"},
	{errors.ErrInvalidTitle, "invalid title"},
	{errors.ErrInvalidDescription, "invalid description"},
	{errors.ErrInvalidStatus, "invalid status"},
	{errors.ErrBadRequest, "malformed request body"},
}

func validationMessage(err error) string {
	for _, m := range validationMessages {
		if stderrors.Is(err, m.err) {
			return m.msg
		}
	}
	return "validation failed"
}

// respondError is the single place where domain errors become HTTP
// responses. Internal details go to the log only.
func (api *TaskAPI) respondError(ctx *gin.Context, err error) {
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		ctx.JSON(http.StatusBadRequest, errorBody(validationMessage(err)))
	case stderrors.Is(err, errors.ErrDuplicateEmail):
		ctx.JSON(http.StatusConflict, errorBody(errors.ErrDuplicateEmail.Error()))
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		ctx.JSON(http.StatusUnauthorized, errorBody(errors.ErrInvalidCredentials.Error()))
	case errors.IsUnauthenticated(err):
		ctx.JSON(http.StatusUnauthorized, errorBody(errors.ErrAuthenticationRequired.Error()))
	case stderrors.Is(err, errors.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorBody("task not found"))
	default:
		_ = ctx.Error(err)
		api.log.Error(ctx.Request.Context(), "request failed", "path", ctx.Request.URL.Path, "error", err.Error())
		ctx.JSON(http.StatusInternalServerError, errorBody(errors.ErrInternal.Error()))
	}
}

func (api *TaskAPI) recovered(ctx *gin.Context, recovered any) {
	api.log.Error(ctx.Request.Context(), "panic while serving request", "path", ctx.Request.URL.Path, "panic", recovered)
	ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(errors.ErrInternal.Error()))
}
