package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"crm-clients/form"
	"crm-clients/models"
	"crm-clients/notify"
	"crm-clients/render"
	"crm-clients/validation"
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ClientHandler struct {
	form  *form.Controller
	feed  notify.Feed
	store Pinger
	html  render.HTML
}

// NewClientHandler builds the handler. feed may be nil when notifications are
// not kept anywhere listable.
func NewClientHandler(ctrl *form.Controller, feed notify.Feed, store Pinger) *ClientHandler {
	return &ClientHandler{form: ctrl, feed: feed, store: store}
}

// RegisterValidators installs the client field tags on gin's binding engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	return validation.Register(v)
}

func (h *ClientHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/", h.Page)

	ui := router.Group("/ui")
	{
		ui.POST("/submit", h.UISubmit)
		ui.POST("/edit/:id", h.UIEdit)
		ui.POST("/cancel", h.UICancel)
		ui.POST("/delete/:id", h.UIDelete)
	}

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.GET("/clients", h.ListClients)
		api.POST("/clients", h.CreateClient)
		api.DELETE("/clients/:id", h.DeleteClient)
		api.GET("/form", h.GetForm)
		api.PUT("/form/fields/:field", h.SetField)
		api.POST("/form/edit/:id", h.BeginEdit)
		api.POST("/form/cancel", h.Cancel)
		api.POST("/form/submit", h.Submit)
		api.GET("/notifications", h.Notifications)
	}
}

type ClientRequest struct {
	Name  string `json:"name" binding:"required,clientname"`
	Email string `json:"email" binding:"required,clientemail"`
	Phone string `json:"phone" binding:"required,clientphone"`
	Type  string `json:"type" binding:"omitempty,oneof=regular nuevo vip"`
}

type FieldRequest struct {
	Value string `json:"value"`
}

func (h *ClientHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"details": gin.H{"store": "unavailable"},
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"details": gin.H{"store": "available"},
	})
}

func (h *ClientHandler) ListClients(c *gin.Context) {
	c.JSON(http.StatusOK, h.form.Search(c.Query("q")))
}

func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.form.Create(c.Request.Context(), models.Client{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Type:  models.ClientType(req.Type),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, client)
	case errors.Is(err, form.ErrSubmitDisabled), errors.Is(err, form.ErrUnknownType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": form.MsgDuplicateEmail})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": form.MsgSaveFailed})
	}
}

// DeleteClient only deletes when the caller passes confirm=true.
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleted, err := h.form.Delete(c.Request.Context(), id, queryConfirmer(c.Query("confirm")))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": form.MsgDeleteFailed})
		return
	}
	if !deleted {
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "confirmation required", "prompt": form.DeletePrompt})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ClientHandler) GetForm(c *gin.Context) {
	c.JSON(http.StatusOK, h.form.State())
}

func (h *ClientHandler) SetField(c *gin.Context) {
	field := c.Param("field")
	if !knownField(field) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown field"})
		return
	}

	var req FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	valid := h.form.SetField(field, req.Value)
	if field == form.FieldType && !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown client type"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"field":      field,
		"valid":      valid,
		"can_submit": h.form.CanSubmit(),
	})
}

func (h *ClientHandler) BeginEdit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.form.BeginEdit(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.form.State())
}

func (h *ClientHandler) Cancel(c *gin.Context) {
	h.form.Cancel()
	c.JSON(http.StatusOK, h.form.State())
}

func (h *ClientHandler) Submit(c *gin.Context) {
	if err := h.form.Submit(c.Request.Context()); err != nil {
		h.submitError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.form.State())
}

func (h *ClientHandler) submitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, form.ErrSubmitDisabled):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "form": h.form.State()})
	case errors.Is(err, models.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": form.MsgDuplicateEmail, "form": h.form.State()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": form.MsgSaveFailed})
	}
}

func (h *ClientHandler) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.active(c.Request.Context())})
}

func (h *ClientHandler) Page(c *gin.Context) {
	query := c.Query("q")
	state := h.form.State()

	page := render.Page{
		Form: render.PageForm{
			Editing:   state.Mode == form.Editing,
			ID:        state.ID,
			Name:      state.Name,
			Email:     state.Email,
			Phone:     state.Phone,
			Type:      state.Type,
			Valid:     touchedValidity(state),
			CanSubmit: state.CanSubmit,
		},
		Query: query,
		List:  h.form.Search(query),
	}
	for _, n := range h.active(c.Request.Context()) {
		page.Notices = append(page.Notices, render.PageNotice{Message: n.Message, Severity: string(n.Severity)})
	}

	var buf bytes.Buffer
	if err := h.html.RenderPage(&buf, page); err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *ClientHandler) UISubmit(c *gin.Context) {
	for _, f := range validation.Fields {
		h.form.SetField(f, c.PostForm(f))
	}
	if t := c.PostForm(form.FieldType); t != "" {
		h.form.SetField(form.FieldType, t)
	}
	// the controller notifies every failure, including invalid fields, and keeps the values
	_ = h.form.Submit(c.Request.Context())
	redirectHome(c)
}

func (h *ClientHandler) UIEdit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_ = h.form.BeginEdit(id)
	redirectHome(c)
}

func (h *ClientHandler) UICancel(c *gin.Context) {
	h.form.Cancel()
	redirectHome(c)
}

func (h *ClientHandler) UIDelete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, _ = h.form.Delete(c.Request.Context(), id, queryConfirmer(c.PostForm("confirm")))
	redirectHome(c)
}

func (h *ClientHandler) active(ctx context.Context) []notify.Notification {
	if h.feed == nil {
		return []notify.Notification{}
	}
	return h.feed.Active(ctx)
}

// touchedValidity only reports validity for fields the user has touched, so an
// empty form is not painted as invalid.
func touchedValidity(s form.State) map[string]bool {
	out := make(map[string]bool, len(s.Touched))
	for f, touched := range s.Touched {
		if touched {
			out[f] = s.Valid[f]
		}
	}
	return out
}

func knownField(field string) bool {
	if field == form.FieldType {
		return true
	}
	for _, f := range validation.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func queryConfirmer(raw string) form.Confirmer {
	return form.ConfirmFunc(func(string) bool {
		ok, _ := strconv.ParseBool(raw)
		return ok
	})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID format"})
		return 0, false
	}
	return uint(id), true
}

func redirectHome(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}
