package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowguard/pkg/autofix"
	"github.com/dukex/flowguard/pkg/eventbus"
	"github.com/dukex/flowguard/pkg/events"
	"github.com/dukex/flowguard/pkg/log"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/otelhelper"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// Workflow serves stored workflows: CRUD, validation, patches and autofix. Mutations of one workflow
// are serialized by a per-workflow lock; validations share it.
type Workflow struct {
	store     persistence.WorkflowStore
	validator *validation.WorkflowValidator
	patcher   *patch.Engine
	fixer     *autofix.Engine
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	validate  *validator.Validate
	locks     *workflowLocks
}

// WorkflowOption configures optional collaborators of the workflow service.
type WorkflowOption func(*Workflow)

// WithPublisher publishes workflow events after every committed change.
func WithPublisher(publisher eventbus.EventPublisher) WorkflowOption {
	return func(w *Workflow) {
		w.publisher = publisher
	}
}

// WithTracer records a span per service call.
func WithTracer(tracer trace.Tracer) WorkflowOption {
	return func(w *Workflow) {
		w.tracer = tracer
	}
}

// WithLogger replaces the module logger.
func WithLogger(logger *slog.Logger) WorkflowOption {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(store persistence.WorkflowStore, catalog validation.Catalog, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		store:     store,
		validator: validation.NewWorkflowValidator(catalog),
		patcher:   patch.NewEngine(catalog),
		tracer:    otelhelper.NoopTracer(),
		logger:    log.WithModule("services"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		locks:     newWorkflowLocks(),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.fixer = autofix.NewEngine(catalog, w.logger.With("component", "autofix"))

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.store == nil {
		return "Persistence layer not initialized", false
	}

	err := w.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Limit     int    `validate:"omitempty,min=1,max=100"`
	Offset    int    `validate:"min=0"`
	Tag       string
	SortBy    string `validate:"omitempty,oneof=created_at updated_at name"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*persistence.WorkflowListResult, error) {
	if err := w.validate.Struct(req); err != nil {
		return nil, NewValidationError("ListWorkflows", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	opts, err := persistence.ListWorkflowsOptions{
		Tag:       req.Tag,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}.Normalize()
	if err != nil {
		return nil, wrap("ListWorkflows", err)
	}

	result, err := w.store.ListWorkflows(ctx, opts)
	if err != nil {
		return nil, wrap("ListWorkflows", err)
	}

	return result, nil
}

// FetchByID returns the stored workflow.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	if err := persistence.ValidateID(id); err != nil {
		return nil, wrap("FetchByID", err)
	}

	workflow, err := w.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Create stores a new workflow. Missing workflow and node ids are generated.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.checkDocument("Create", workflow); err != nil {
		return nil, err
	}

	created := workflow.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}

	if err := persistence.ValidateID(created.ID); err != nil {
		return nil, wrap("Create", err)
	}

	defer w.locks.lock(created.ID)()

	if _, err := w.store.WorkflowByID(ctx, created.ID); err == nil {
		return nil, &ServiceError{Op: "Create", Code: "conflict", Message: fmt.Sprintf("workflow %q already exists", created.ID), Err: ErrWorkflowExists}
	} else if !persistence.IsWorkflowNotFound(err) {
		return nil, wrap("Create", err)
	}

	for _, node := range created.Nodes {
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
	}

	created.CreatedAt = time.Time{}

	if err := w.store.SaveWorkflow(ctx, created); err != nil {
		return nil, wrap("Create", err)
	}

	w.publish(ctx, created.ID, events.NewWorkflowCreated(created.ID, created.Name))

	return created, nil
}

// Update replaces a stored workflow document, keeping its id and creation time.
func (w *Workflow) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.checkDocument("Update", workflow); err != nil {
		return nil, err
	}

	if err := persistence.ValidateID(id); err != nil {
		return nil, wrap("Update", err)
	}

	defer w.locks.lock(id)()

	existing, err := w.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := workflow.Clone()
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := w.store.SaveWorkflow(ctx, updated); err != nil {
		return nil, wrap("Update", err)
	}

	w.publish(ctx, id, events.NewWorkflowUpdated(id, updated.Name))

	return updated, nil
}

// Delete removes a stored workflow.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	if err := persistence.ValidateID(id); err != nil {
		return wrap("Delete", err)
	}

	defer w.locks.lock(id)()

	if err := w.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}

	w.publish(ctx, id, events.NewWorkflowDeleted(id))

	return nil
}

// Validate validates the stored workflow. Concurrent validations of the same workflow run in parallel;
// they wait for an in-flight patch or autofix.
func (w *Workflow) Validate(ctx context.Context, id string, opts validation.Options) (*models.ValidationReport, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "services.workflow.validate",
		attribute.String(otelhelper.WorkflowIDKey, id),
		attribute.String(otelhelper.ProfileKey, string(opts.Profile)),
	)
	defer span.End()

	if err := persistence.ValidateID(id); err != nil {
		return nil, w.fail(span, wrap("Validate", err))
	}

	defer w.locks.rlock(id)()

	workflow, err := w.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, w.fail(span, err)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowNameKey, workflow.Name))

	report, err := w.validator.ValidateWorkflow(ctx, workflow, opts)
	if err != nil {
		return nil, w.fail(span, wrap("Validate", err))
	}

	return report, nil
}

// ValidateDocument validates a workflow that is not stored.
func (w *Workflow) ValidateDocument(ctx context.Context, workflow *models.Workflow, opts validation.Options) (*models.ValidationReport, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "services.workflow.validate_document",
		attribute.String(otelhelper.ProfileKey, string(opts.Profile)),
	)
	defer span.End()

	if workflow == nil {
		return nil, w.fail(span, wrap("ValidateDocument", ErrWorkflowNil))
	}

	report, err := w.validator.ValidateWorkflow(ctx, workflow, opts)
	if err != nil {
		return nil, w.fail(span, wrap("ValidateDocument", err))
	}

	return report, nil
}

// ValidateNode validates one node configuration against its catalog definition.
func (w *Workflow) ValidateNode(ctx context.Context, typeID string, config map[string]any, profile validation.Profile) (*models.ValidationReport, error) {
	_, span := otelhelper.StartSpan(ctx, w.tracer, "services.workflow.validate_node",
		attribute.String("flowguard.node.type", typeID),
		attribute.String(otelhelper.ProfileKey, string(profile)),
	)
	defer span.End()

	report, err := w.validator.Nodes().ValidateNode(typeID, config, profile)
	if err != nil {
		return nil, w.fail(span, wrap("ValidateNode", err))
	}

	return report, nil
}

// Patch applies ops to the stored workflow and persists the result when it is committable.
// The write lock is held from read to write, so concurrent patches of one workflow never interleave.
func (w *Workflow) Patch(ctx context.Context, id string, ops []patch.Operation, opts patch.Options) (*patch.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "services.workflow.patch",
		attribute.String(otelhelper.WorkflowIDKey, id),
		attribute.Int(otelhelper.OperationsKey, len(ops)),
	)
	defer span.End()

	if err := persistence.ValidateID(id); err != nil {
		return nil, w.fail(span, wrap("Patch", err))
	}

	if len(ops) == 0 {
		return nil, w.fail(span, wrap("Patch", ErrNoOperations))
	}

	defer w.locks.lock(id)()

	workflow, err := w.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, w.fail(span, err)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowNameKey, workflow.Name))

	result, err := w.patcher.Apply(ctx, workflow, ops, opts)
	if err != nil {
		return nil, w.fail(span, wrap("Patch", err))
	}

	span.SetAttributes(
		attribute.Int(otelhelper.AppliedKey, len(result.Applied)),
		attribute.Int(otelhelper.SkippedKey, len(result.Skipped)),
	)

	if !result.Committable() {
		return result, nil
	}

	if err := w.store.SaveWorkflow(ctx, result.Workflow); err != nil {
		return nil, w.fail(span, wrap("Patch", err))
	}

	w.logger.InfoContext(ctx, "workflow patched",
		"workflow_id", id,
		"applied", len(result.Applied),
		"skipped", len(result.Skipped),
	)

	w.publish(ctx, id, events.NewWorkflowPatched(id, len(result.Applied), len(result.Skipped), opTypes(result.Applied), result.Report.Valid()))

	return result, nil
}

// PatchDocument applies ops to a workflow that is not stored.
func (w *Workflow) PatchDocument(ctx context.Context, workflow *models.Workflow, ops []patch.Operation, opts patch.Options) (*patch.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "services.workflow.patch_document",
		attribute.Int(otelhelper.OperationsKey, len(ops)),
	)
	defer span.End()

	if workflow == nil {
		return nil, w.fail(span, wrap("PatchDocument", ErrWorkflowNil))
	}

	if len(ops) == 0 {
		return nil, w.fail(span, wrap("PatchDocument", ErrNoOperations))
	}

	result, err := w.patcher.Apply(ctx, workflow, ops, opts)
	if err != nil {
		return nil, w.fail(span, wrap("PatchDocument", err))
	}

	return result, nil
}

// Autofix corrects the stored workflow and persists the result when at least one fix was applied.
func (w *Workflow) Autofix(ctx context.Context, id string, opts autofix.Options) (*autofix.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "services.workflow.autofix",
		attribute.String(otelhelper.WorkflowIDKey, id),
		attribute.String(otelhelper.ProfileKey, string(opts.Profile)),
		attribute.String(otelhelper.ThresholdKey, string(opts.ConfidenceThreshold)),
	)
	defer span.End()

	if err := persistence.ValidateID(id); err != nil {
		return nil, w.fail(span, wrap("Autofix", err))
	}

	defer w.locks.lock(id)()

	workflow, err := w.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, w.fail(span, err)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowNameKey, workflow.Name))

	result, err := w.fixer.Fix(ctx, workflow, opts)
	if err != nil {
		return nil, w.fail(span, wrap("Autofix", err))
	}

	span.SetAttributes(attribute.Int(otelhelper.AppliedKey, len(result.Applied)))

	if !result.Committable() {
		return result, nil
	}

	if err := w.store.SaveWorkflow(ctx, result.Workflow); err != nil {
		return nil, w.fail(span, wrap("Autofix", err))
	}

	fixTypes := make([]string, len(result.Applied))
	for i, fix := range result.Applied {
		fixTypes[i] = string(fix.Type)
	}

	w.publish(ctx, id, events.NewWorkflowAutofixed(id, fixTypes, len(result.Proposed), len(result.Failed),
		string(opts.ConfidenceThreshold), result.Report.Valid()))

	return result, nil
}

// AutofixDocument corrects a workflow that is not stored.
func (w *Workflow) AutofixDocument(ctx context.Context, workflow *models.Workflow, opts autofix.Options) (*autofix.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "services.workflow.autofix_document",
		attribute.String(otelhelper.ProfileKey, string(opts.Profile)),
		attribute.String(otelhelper.ThresholdKey, string(opts.ConfidenceThreshold)),
	)
	defer span.End()

	if workflow == nil {
		return nil, w.fail(span, wrap("AutofixDocument", ErrWorkflowNil))
	}

	result, err := w.fixer.Fix(ctx, workflow, opts)
	if err != nil {
		return nil, w.fail(span, wrap("AutofixDocument", err))
	}

	return result, nil
}

func (w *Workflow) checkDocument(op string, workflow *models.Workflow) error {
	if workflow == nil {
		return wrap(op, ErrWorkflowNil)
	}

	if workflow.Name == "" {
		return wrap(op, ErrWorkflowNameRequired)
	}

	for _, node := range workflow.Nodes {
		if node == nil || node.Name == "" || node.TypeID == "" {
			return NewValidationError(op, "invalid_node", "every node needs a name and a type_id", ErrInvalidRequest)
		}
	}

	return nil
}

// publish sends event when a publisher is configured. The change is already committed, so a failure
// is logged and not returned.
func (w *Workflow) publish(ctx context.Context, key string, event eventbus.Event) {
	if w.publisher == nil {
		return
	}

	if err := w.publisher.Publish(ctx, key, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish event",
			"workflow_id", key,
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

func (w *Workflow) fail(span trace.Span, err error) error {
	otelhelper.SetError(span, err)

	return err
}

func opTypes(results []patch.OpResult) []string {
	types := make([]string, len(results))
	for i, r := range results {
		types[i] = string(r.Type)
	}

	return types
}

// workflowLocks hands out one RWMutex per workflow id, created on first use.
type workflowLocks struct {
	mu    sync.Mutex
	locks map[string]*workflowLock
}

// workflowLock is dropped from the map once no caller holds or waits for it.
type workflowLock struct {
	sync.RWMutex
	refs int
}

func newWorkflowLocks() *workflowLocks {
	return &workflowLocks{locks: make(map[string]*workflowLock)}
}

// lock takes the write lock of id and returns its release func.
func (l *workflowLocks) lock(id string) func() {
	entry := l.acquire(id)
	entry.Lock()

	return func() {
		entry.Unlock()
		l.release(id, entry)
	}
}

// rlock takes the read lock of id and returns its release func.
func (l *workflowLocks) rlock(id string) func() {
	entry := l.acquire(id)
	entry.RLock()

	return func() {
		entry.RUnlock()
		l.release(id, entry)
	}
}

func (l *workflowLocks) acquire(id string) *workflowLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[id]
	if !ok {
		entry = &workflowLock{}
		l.locks[id] = entry
	}

	entry.refs++

	return entry
}

func (l *workflowLocks) release(id string, entry *workflowLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}

// size returns the number of tracked ids.
func (l *workflowLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
