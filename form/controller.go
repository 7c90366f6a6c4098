// Package form drives the create/edit workflow for client records.
//
// The controller is Idle (a submit creates) until a record is picked for
// editing, then Editing (a submit overwrites that record) until it is saved or
// cancelled. Submission is only allowed while name, email and phone are valid.
package form

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"crm-clients/events"
	"crm-clients/logger"
	"crm-clients/models"
	"crm-clients/notify"
	"crm-clients/registry"
	"crm-clients/render"
	"crm-clients/search"
	"crm-clients/utils"
	"crm-clients/validation"
)

type Mode int

const (
	Idle Mode = iota
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "editing"
	}
	return "idle"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

const FieldType = "type"

const DeletePrompt = "Delete this client permanently?"

const (
	MsgAdded          = "Client added"
	MsgUpdated        = "Client updated"
	MsgDuplicateEmail = "Error: the email already exists"
	MsgSaveFailed     = "Error: the client could not be saved"
	MsgDeleted        = "Client deleted"
	MsgDeleteFailed   = "Error: the client could not be deleted"
	MsgEditMode       = "Edit mode enabled"
	MsgCleared        = "Form cleared"
	MsgLoadFailed     = "Error loading clients"

	MsgInvalidFields      = "Error: check the highlighted fields"
	MsgStorageUnavailable = "Error opening the database"
)

var (
	ErrSubmitDisabled = errors.New("form has invalid fields")
	ErrUnknownClient  = errors.New("client not found")
	ErrUnknownType    = errors.New("unknown client type")
)

// Store is the subset of the record store the controller needs.
type Store interface {
	Insert(ctx context.Context, client models.Client) (uint, error)
	Update(ctx context.Context, client models.Client) error
	Delete(ctx context.Context, id uint) error
	ListAll(ctx context.Context) ([]models.Client, error)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// ErrorReporter receives unexpected storage failures.
type ErrorReporter func(err error, context map[string]interface{})

type Option func(*Controller)

func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func WithErrorReporter(r ErrorReporter) Option {
	return func(c *Controller) { c.report = r }
}

type Controller struct {
	mu sync.Mutex

	store     Store
	registry  *registry.Registry
	notifier  notify.Notifier
	publisher events.Publisher
	report    ErrorReporter

	stagedID   uint
	values     map[string]string
	valid      map[string]bool
	touched    map[string]bool
	clientType models.ClientType
}

func New(store Store, reg *registry.Registry, notifier notify.Notifier, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		registry:  reg,
		notifier:  notifier,
		publisher: events.Nop{},
		report:    utils.CaptureError,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.clear()
	return c
}

// State is a copy of the form as the presentation layer needs it.
type State struct {
	Mode      Mode              `json:"mode"`
	ID        uint              `json:"id,omitempty"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone"`
	Type      models.ClientType `json:"type"`
	Valid     map[string]bool   `json:"valid"`
	Touched   map[string]bool   `json:"touched"`
	CanSubmit bool              `json:"can_submit"`
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Mode:      c.mode(),
		ID:        c.stagedID,
		Name:      c.values[validation.FieldName],
		Email:     c.values[validation.FieldEmail],
		Phone:     c.values[validation.FieldPhone],
		Type:      c.clientType,
		Valid:     make(map[string]bool, len(c.valid)),
		Touched:   make(map[string]bool, len(c.touched)),
		CanSubmit: c.canSubmit(),
	}
	for k, v := range c.valid {
		s.Valid[k] = v
	}
	for k, v := range c.touched {
		s.Touched[k] = v
	}
	return s
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode()
}

func (c *Controller) StagedID() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stagedID
}

func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmit()
}

// Field returns the raw value last set for field.
func (c *Controller) Field(field string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if field == FieldType {
		return string(c.clientType)
	}
	return c.values[field]
}

func (c *Controller) Valid(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid[field]
}

// SetField stores a raw input value and re-validates it. It reports whether
// the value was accepted as valid. The type selector only accepts known types.
func (c *Controller) SetField(field, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if field == FieldType {
		t, ok := models.ParseClientType(value)
		if ok {
			c.clientType = t
		}
		return ok
	}

	if _, known := c.valid[field]; !known {
		return false
	}
	c.values[field] = value
	c.valid[field] = validation.Validate(field, value)
	c.touched[field] = true
	return c.valid[field]
}

// BeginEdit stages the registry's copy of id. Values from the store are trusted,
// so every field is marked valid without re-validation.
func (c *Controller) BeginEdit(id uint) error {
	client, ok := c.registry.Find(id)
	if !ok {
		return ErrUnknownClient
	}

	c.mu.Lock()
	c.stagedID = client.ID
	c.values[validation.FieldName] = client.Name
	c.values[validation.FieldEmail] = client.Email
	c.values[validation.FieldPhone] = client.Phone
	for _, f := range validation.Fields {
		c.valid[f] = true
		c.touched[f] = true
	}
	c.clientType = client.Type
	c.mu.Unlock()

	c.notifier.Notify(MsgEditMode, notify.Info)
	return nil
}

// Cancel drops any staged edit and clears the form.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.clear()
	c.mu.Unlock()
	c.notifier.Notify(MsgCleared, notify.Info)
}

// Submit inserts or updates the staged record. On failure the form is kept as
// is so the user can correct it.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canSubmit() {
		c.notifier.Notify(MsgInvalidFields, notify.Warning)
		return ErrSubmitDisabled
	}

	client := models.Client{
		ID:    c.stagedID,
		Name:  c.values[validation.FieldName],
		Email: c.values[validation.FieldEmail],
		Phone: c.values[validation.FieldPhone],
		Type:  c.clientType,
	}
	if _, err := c.save(ctx, client); err != nil {
		return err
	}

	c.clear()
	c.notifier.Notify(MsgCleared, notify.Info)
	_ = c.reload(ctx)
	return nil
}

// Create inserts a record built outside the form, such as an API request.
// The staged form is left as it is. An empty type becomes the default type.
func (c *Controller) Create(ctx context.Context, client models.Client) (models.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for field, value := range map[string]string{
		validation.FieldName:  client.Name,
		validation.FieldEmail: client.Email,
		validation.FieldPhone: client.Phone,
	} {
		if !validation.Validate(field, value) {
			return models.Client{}, ErrSubmitDisabled
		}
	}
	if client.Type != "" {
		t, ok := models.ParseClientType(string(client.Type))
		if !ok {
			return models.Client{}, ErrUnknownType
		}
		client.Type = t
	}

	client.ID = 0
	saved, err := c.save(ctx, client)
	if err != nil {
		return models.Client{}, err
	}
	_ = c.reload(ctx)
	return saved, nil
}

// save trims and stores client, then notifies and publishes. The caller holds mu.
func (c *Controller) save(ctx context.Context, client models.Client) (models.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	client.Email = strings.TrimSpace(client.Email)
	client.Phone = strings.TrimSpace(client.Phone)
	if client.Type == "" {
		client.Type = models.DefaultClientType
	}

	log := logger.From(ctx).With(logger.Email(client.Email))

	var (
		err     error
		op      = "insert"
		event   = models.EventClientCreated
		message = MsgAdded
	)
	if client.ID != 0 {
		op, event, message = "update", models.EventClientUpdated, MsgUpdated
		err = c.store.Update(ctx, client)
	} else {
		client.ID, err = c.store.Insert(ctx, client)
	}
	if err != nil {
		c.saveFailed(log, op, err)
		return models.Client{}, err
	}

	log.Info("client saved", logger.Op(op), logger.ClientID(client.ID))
	c.notifier.Notify(message, notify.Success)
	c.publisher.Publish(ctx, models.ClientEvent{Event: event, Data: client})
	return client, nil
}

func (c *Controller) saveFailed(log *zap.Logger, op string, err error) {
	if errors.Is(err, models.ErrDuplicateEmail) {
		log.Warn("duplicate email rejected", logger.Op(op))
		c.notifier.Notify(MsgDuplicateEmail, notify.Error)
		return
	}
	log.Error("failed to save client", logger.Op(op), zap.Error(err))
	c.report(err, map[string]interface{}{"op": op})
	c.notifier.Notify(MsgSaveFailed, notify.Error)
}

// Delete removes id once confirm agrees. It reports whether anything was deleted.
func (c *Controller) Delete(ctx context.Context, id uint, confirm Confirmer) (bool, error) {
	if confirm == nil || !confirm.Confirm(DeletePrompt) {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log := logger.From(ctx).With(logger.ClientID(id))
	if err := c.store.Delete(ctx, id); err != nil {
		log.Error("failed to delete client", zap.Error(err))
		c.report(err, map[string]interface{}{"op": "delete", "client_id": id})
		c.notifier.Notify(MsgDeleteFailed, notify.Error)
		return false, err
	}

	log.Info("client deleted")
	c.notifier.Notify(MsgDeleted, notify.Warning)

	deleted, ok := c.registry.Find(id)
	if !ok {
		deleted = models.Client{ID: id}
	}
	c.publisher.Publish(ctx, models.ClientEvent{Event: models.EventClientDeleted, Data: deleted})
	_ = c.reload(ctx)
	return true, nil
}

// Reload replaces the registry with the store's full record set.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload(ctx)
}

func (c *Controller) reload(ctx context.Context) error {
	clients, err := c.store.ListAll(ctx)
	if err != nil {
		logger.From(ctx).Error("failed to load clients", zap.Error(err))
		c.report(err, map[string]interface{}{"op": "list"})
		c.notifier.Notify(MsgLoadFailed, notify.Error)
		return err
	}
	c.registry.Replace(clients)
	return nil
}

// Search filters the current registry snapshot. It never waits on the store.
func (c *Controller) Search(query string) render.View {
	return render.NewView(search.Filter(c.registry.Snapshot(), query))
}

func (c *Controller) mode() Mode {
	if c.stagedID != 0 {
		return Editing
	}
	return Idle
}

func (c *Controller) canSubmit() bool {
	for _, f := range validation.Fields {
		if !c.valid[f] {
			return false
		}
	}
	return true
}

func (c *Controller) clear() {
	c.stagedID = 0
	c.values = make(map[string]string, len(validation.Fields))
	c.valid = make(map[string]bool, len(validation.Fields))
	c.touched = make(map[string]bool, len(validation.Fields))
	for _, f := range validation.Fields {
		c.values[f] = ""
		c.valid[f] = false
	}
	c.clientType = models.DefaultClientType
}
