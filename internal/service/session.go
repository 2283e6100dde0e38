package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/procura/api/internal/catalog"
	"github.com/procura/api/internal/document"
	"github.com/procura/api/internal/enum"
	"github.com/procura/api/internal/events"
	"github.com/procura/api/internal/matcher"
	"github.com/procura/api/internal/notify"
	"github.com/procura/api/internal/orderlist"
	"github.com/procura/api/internal/quickadd"
	"github.com/procura/api/internal/reference"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"
)

// QuickAddThreshold is the similarity a pasted line needs to be taken as
// the catalog item it resembles.
const QuickAddThreshold = 0.9

// Errors returned by the session service.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidMode        = errors.New("invalid session mode")
	ErrWorkPackage        = errors.New("unknown work package")
	ErrDocumentRequired   = errors.New("document is required for edit and resolve")
	ErrNotRejected        = errors.New("only rejected requests can be resolved")
	ErrUnknownCatalogItem = errors.New("item not found in category")
	ErrForeignCategory    = errors.New("category is not part of the work package")
	ErrEmptyOrder         = errors.New("order list is empty")
	ErrPersistence        = errors.New("failed to save procurement request")
)

// OpenRequest is the validated input for opening a session.
type OpenRequest struct {
	Mode        string
	WorkPackage string // create only
	Project     string
	Document    string // edit and resolve
	UserID      string
}

// AddItemRequest is a single item to add. An empty CatalogID adds an
// ad-hoc item named Name.
type AddItemRequest struct {
	Category  string
	CatalogID string
	Name      string
	Unit      string
	Quantity  decimal.Decimal
	Comment   string
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	ID          uuid.UUID                 `json:"id"`
	Mode        string                    `json:"mode"`
	WorkPackage string                    `json:"work_package"`
	Project     string                    `json:"project,omitempty"`
	Document    string                    `json:"document,omitempty"`
	Items       []orderlist.LineItem      `json:"items"`
	Categories  []orderlist.CategoryEntry `json:"categories"`
	Groups      []orderlist.CategoryGroup `json:"groups"`
	UndoCount   int                       `json:"undo_count"`
	LastDeleted *orderlist.LineItem       `json:"last_deleted,omitempty"`
}

// QuickAddOutcome is the result of one pasted line.
type QuickAddOutcome struct {
	Line       string              `json:"line"`
	Item       *orderlist.LineItem `json:"item,omitempty"`
	Matched    bool                `json:"matched"`
	Similarity float64             `json:"similarity,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// QuickAddResult reports every pasted line.
type QuickAddResult struct {
	Added    int               `json:"added"`
	Outcomes []QuickAddOutcome `json:"outcomes"`
	Warnings []string          `json:"warnings"`
}

// SubmitResult is returned after the request was persisted.
type SubmitResult struct {
	Document string            `json:"document"`
	Mode     string            `json:"mode"`
	Payload  orderlist.Payload `json:"payload"`
	Changes  jsondiff.Patch    `json:"changes,omitempty"`
}

// Session is one editing session over a procurement order list.
type Session struct {
	ID          uuid.UUID
	Mode        string
	WorkPackage string
	Project     string
	Document    string
	UserID      string

	mu       sync.Mutex
	editor   *orderlist.Editor
	ref      *reference.Data
	matcher  *matcher.Matcher
	baseline []byte
	lastUsed time.Time
	closed   bool
}

// storedRequest is the part of a stored procurement request the service reads.
type storedRequest struct {
	Name            string          `json:"name"`
	Project         string          `json:"project"`
	WorkPackage     string          `json:"work_package"`
	WorkflowState   string          `json:"workflow_state"`
	ProcurementList json.RawMessage `json:"procurement_list"`
}

// Service holds the open editing sessions.
type Service struct {
	store     document.Store
	reference document.Lister
	sink      notify.Sink
	events    events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where user notifications are delivered.
func WithNotifier(sink notify.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithPublisher sets the event publisher used on submit.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithReferenceSource reads reference collections from src instead of
// the document store.
func WithReferenceSource(src document.Lister) Option {
	return func(s *Service) { s.reference = src }
}

// WithIDGenerator overrides ad-hoc item ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new Service.
func New(store document.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		reference: store,
		sink:      notify.Fanout{},
		events:    events.NopPublisher{},
		log:       logrus.StandardLogger(),
		now:       time.Now,
		newID:     uuid.NewString,
		sessions:  make(map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a session. Reference data is fetched once here; edit and
// resolve sessions are seeded from the stored request.
func (s *Service) Open(ctx context.Context, req OpenRequest) (Snapshot, error) {
	snap, err := s.open(ctx, req)
	observe("open", err)
	return snap, err
}

func (s *Service) open(ctx context.Context, req OpenRequest) (Snapshot, error) {
	switch req.Mode {
	case enum.SessionModeCreate, enum.SessionModeEdit, enum.SessionModeResolve:
	default:
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}

	ref, err := reference.Load(ctx, s.reference)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load reference data: %w", err)
	}

	sess := &Session{
		ID:       uuid.New(),
		Mode:     req.Mode,
		Project:  req.Project,
		UserID:   req.UserID,
		editor:   orderlist.NewEditor(ref.Index, orderlist.WithIDGenerator(s.newID)),
		ref:      ref,
		matcher:  matcher.New(ref.MatcherItems()),
		lastUsed: s.now(),
	}

	if req.Mode == enum.SessionModeCreate {
		if !hasWorkPackage(ref.Index, req.WorkPackage) {
			return Snapshot{}, fmt.Errorf("%w: %q", ErrWorkPackage, req.WorkPackage)
		}
		sess.WorkPackage = req.WorkPackage
	} else {
		if err := s.restore(ctx, sess, req.Document); err != nil {
			return Snapshot{}, err
		}
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	openSessions.Inc()

	s.log.WithFields(logrus.Fields{
		"session":      sess.ID.String(),
		"mode":         sess.Mode,
		"work_package": sess.WorkPackage,
		"user":         sess.UserID,
	}).Info("session opened")

	return sess.snapshot(), nil
}

func (s *Service) restore(ctx context.Context, sess *Session, name string) error {
	if name == "" {
		return ErrDocumentRequired
	}
	var stored storedRequest
	if err := s.store.Get(ctx, enum.DocTypeProcurementRequests, name, &stored); err != nil {
		return fmt.Errorf("load %s %q: %w", enum.DocTypeProcurementRequests, name, err)
	}
	if sess.Mode == enum.SessionModeResolve && stored.WorkflowState != enum.WorkflowStateRejected {
		return fmt.Errorf("%w: %s is %q", ErrNotRejected, name, stored.WorkflowState)
	}

	var list orderlist.ProcurementList
	if err := decodeEmbedded(stored.ProcurementList, &list); err != nil {
		return fmt.Errorf("decode %s %q: %w", enum.DocTypeProcurementRequests, name, err)
	}

	sess.Document = name
	sess.WorkPackage = stored.WorkPackage
	if sess.Project == "" {
		sess.Project = stored.Project
	}
	for _, dup := range sess.editor.Restore(list.List) {
		s.log.WithFields(logrus.Fields{
			"document": name,
			"item":     dup.ID(),
		}).Warn("dropped duplicate item from stored request")
	}

	baseline, err := json.Marshal(sess.payload())
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	sess.baseline = baseline
	return nil
}

// CanWatch reports whether the user may access the session.
func (s *Service) CanWatch(id uuid.UUID, userID, role string) bool {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return role == enum.UserRoleAdmin || sess.UserID == userID
}

// Snapshot returns the current state of a session.
func (s *Service) Snapshot(id uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	err := s.with(id, func(sess *Session) error {
		snap = sess.snapshot()
		return nil
	})
	return snap, err
}

// Categories returns the categories of the session's work package.
func (s *Service) Categories(id uuid.UUID) ([]catalog.CategoryOption, error) {
	var out []catalog.CategoryOption
	err := s.with(id, func(sess *Session) error {
		out = sess.ref.Index.CategoriesForWorkPackage(sess.WorkPackage)
		return nil
	})
	return out, err
}

// ItemsForCategory returns the catalog items of a category, or of the
// whole work package when category is empty.
func (s *Service) ItemsForCategory(id uuid.UUID, category string) ([]catalog.ItemOption, error) {
	var out []catalog.ItemOption
	err := s.with(id, func(sess *Session) error {
		if category == "" {
			out = sess.ref.Index.ItemsForWorkPackage(sess.WorkPackage)
			return nil
		}
		out = sess.ref.Index.ItemsForCategory(category)
		return nil
	})
	return out, err
}

// Search ranks catalog items resembling text, optionally within a category.
func (s *Service) Search(id uuid.UUID, text, category string) ([]matcher.RankedMatch, error) {
	var out []matcher.RankedMatch
	err := s.with(id, func(sess *Session) error {
		if category == "" {
			out = sess.matcher.Search(text)
			return nil
		}
		out = sess.matcher.SearchCategory(text, category)
		return nil
	})
	return out, err
}

// AddItem adds an item to the order list. A duplicate is reported to the
// user as a destructive notification and returned as an error.
func (s *Service) AddItem(ctx context.Context, id uuid.UUID, req AddItemRequest) (orderlist.LineItem, error) {
	var item orderlist.LineItem
	err := s.with(id, func(sess *Session) error {
		var err error
		item, err = s.addLocked(ctx, sess, req)
		return err
	})
	observe("add", err)
	return item, err
}

func (s *Service) addLocked(ctx context.Context, sess *Session, req AddItemRequest) (orderlist.LineItem, error) {
	if err := sess.checkCategory(req.Category); err != nil {
		return orderlist.LineItem{}, err
	}
	pending := orderlist.PendingItem{
		Category:  req.Category,
		CatalogID: req.CatalogID,
		Name:      req.Name,
		Unit:      req.Unit,
		Quantity:  req.Quantity,
		Comment:   req.Comment,
	}
	if req.CatalogID != "" {
		opt, ok := findItem(sess.ref.Index.ItemsForCategory(req.Category), req.CatalogID)
		if !ok {
			return orderlist.LineItem{}, fmt.Errorf("%w: %s", ErrUnknownCatalogItem, req.CatalogID)
		}
		pending.Name = opt.Label
		if pending.Unit == "" {
			pending.Unit = opt.Unit
		}
	}

	sess.editor.Stage(pending)
	item, err := sess.editor.AddPending()
	if err != nil {
		var dup *orderlist.DuplicateItemError
		if errors.As(err, &dup) {
			s.sink.Notify(ctx, sess.ID, notify.Destructive("Duplicate item", err.Error()))
		}
		return orderlist.LineItem{}, err
	}
	return item, nil
}

// EditItem updates an item in place. It reports whether anything changed.
func (s *Service) EditItem(ctx context.Context, id uuid.UUID, itemID string, p orderlist.Patch) (orderlist.LineItem, bool, error) {
	var (
		item    orderlist.LineItem
		changed bool
	)
	err := s.with(id, func(sess *Session) error {
		if p.Category != nil {
			if err := sess.checkCategory(*p.Category); err != nil {
				return err
			}
		}
		var err error
		item, changed, err = sess.editor.EditItem(itemID, p)
		return err
	})
	observe("edit", err)
	return item, changed, err
}

// DeleteItem removes an item and pushes it onto the undo stack. Unknown
// items are ignored and reported as not deleted.
func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID, itemID string) (orderlist.LineItem, bool, error) {
	var (
		item    orderlist.LineItem
		deleted bool
	)
	err := s.with(id, func(sess *Session) error {
		item, deleted = sess.editor.DeleteItem(itemID)
		return nil
	})
	observe("delete", err)
	return item, deleted, err
}

// Undo restores the most recently deleted item at the end of the list.
func (s *Service) Undo(ctx context.Context, id uuid.UUID) (orderlist.LineItem, bool, error) {
	var (
		item     orderlist.LineItem
		restored bool
	)
	err := s.with(id, func(sess *Session) error {
		item, restored = sess.editor.Undo()
		return nil
	})
	observe("undo", err)
	return item, restored, err
}

// QuickAdd parses pasted lines and adds each one to category. Lines that
// closely match a catalog item of the category become that item; the rest
// are added as ad-hoc requests.
func (s *Service) QuickAdd(ctx context.Context, id uuid.UUID, category, text string) (QuickAddResult, error) {
	res := QuickAddResult{Outcomes: []QuickAddOutcome{}, Warnings: []string{}}
	err := s.with(id, func(sess *Session) error {
		if err := sess.checkCategory(category); err != nil {
			return err
		}
		lines, warnings := quickadd.Parse(text)
		res.Warnings = append(res.Warnings, warnings...)

		for _, line := range lines {
			out := QuickAddOutcome{Line: line.RawText}
			req := AddItemRequest{
				Category: category,
				Name:     line.Name,
				Unit:     line.Unit,
				Quantity: line.Quantity,
			}
			if matches := sess.matcher.SearchCategory(line.Name, category); len(matches) > 0 && matches[0].Similarity >= QuickAddThreshold {
				req.CatalogID = matches[0].Item.ID
				req.Name = matches[0].Item.Name
				out.Matched = true
				out.Similarity = matches[0].Similarity
			}

			item, err := s.addLocked(ctx, sess, req)
			if err != nil {
				out.Error = err.Error()
			} else {
				out.Item = &item
				res.Added++
			}
			res.Outcomes = append(res.Outcomes, out)
		}
		return nil
	})
	observe("quick_add", err)
	return res, err
}

// Submit persists the order list. On failure the user is notified and the
// session is kept so the submit can be retried. On success the session is
// closed.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (SubmitResult, error) {
	var res SubmitResult
	err := s.with(id, func(sess *Session) error {
		var err error
		res, err = s.submitLocked(ctx, sess)
		if err != nil {
			return err
		}
		sess.closed = true
		return nil
	})
	observe("submit", err)
	if err != nil {
		return SubmitResult{}, err
	}
	s.remove(id)
	return res, nil
}

func (s *Service) submitLocked(ctx context.Context, sess *Session) (SubmitResult, error) {
	if sess.editor.Len() == 0 {
		return SubmitResult{}, ErrEmptyOrder
	}

	payload := sess.payload()
	if sess.Mode == enum.SessionModeResolve {
		payload.WorkflowState = enum.WorkflowStatePending
	}

	start := s.now()
	var (
		name string
		err  error
	)
	if sess.Mode == enum.SessionModeCreate {
		name, err = s.store.Create(ctx, enum.DocTypeProcurementRequests, payload)
	} else {
		name, err = s.store.Update(ctx, enum.DocTypeProcurementRequests, sess.Document, payload)
	}
	submitLatency.WithLabelValues(sess.Mode).Observe(s.now().Sub(start).Seconds())

	logger := s.log.WithFields(logrus.Fields{
		"session":      sess.ID.String(),
		"mode":         sess.Mode,
		"work_package": sess.WorkPackage,
		"items":        sess.editor.Len(),
	})
	if err != nil {
		logger.WithError(err).Error("submit procurement request")
		s.sink.Notify(ctx, sess.ID, notify.Destructive("Failed to submit request", err.Error()))
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	res := SubmitResult{Document: name, Mode: sess.Mode, Payload: payload}
	subject := events.SubjectRequestSubmitted
	title := "Request submitted"
	if sess.Mode != enum.SessionModeCreate {
		subject = events.SubjectRequestUpdated
		title = "Request updated"
		res.Changes = sess.diff(payload, logger)
	}

	logger.WithFields(logrus.Fields{"document": name, "changes": len(res.Changes)}).Info("procurement request saved")
	s.sink.Notify(ctx, sess.ID, notify.Success(title, fmt.Sprintf("%s saved with %d items", name, sess.editor.Len())))

	ev := events.RequestEvent{
		Document:           name,
		Project:            sess.Project,
		WorkPackage:        sess.WorkPackage,
		RequestedBy:        sess.UserID,
		RequesterName:      sess.ref.UserName(sess.UserID),
		ItemCount:          len(payload.ProcurementList.List),
		RequestedItemCount: countRequested(payload.ProcurementList.List),
	}
	if err := events.PublishRequest(ctx, s.events, subject, ev); err != nil {
		logger.WithError(err).Warn("publish request event")
	}
	return res, nil
}

// Close abandons a session. Unsaved edits are discarded.
func (s *Service) Close(id uuid.UUID) error {
	err := s.with(id, func(sess *Session) error {
		sess.closed = true
		return nil
	})
	observe("close", err)
	if err != nil {
		return err
	}
	s.remove(id)
	return nil
}

// Sweep abandons sessions idle for longer than maxIdle and returns how
// many were removed.
func (s *Service) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.RLock()
	candidates := make([]*Session, 0)
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	n := 0
	for _, sess := range candidates {
		sess.mu.Lock()
		idle := !sess.closed && sess.lastUsed.Before(cutoff)
		if idle {
			sess.closed = true
		}
		sess.mu.Unlock()
		if idle {
			s.remove(sess.ID)
			n++
		}
	}
	if n > 0 {
		s.log.WithField("sessions", n).Info("abandoned idle sessions")
	}
	return n
}

// Len returns the number of open sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// with runs fn under the session lock.
func (s *Service) with(id uuid.UUID, fn func(*Session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return ErrSessionNotFound
	}
	sess.lastUsed = s.now()
	return fn(sess)
}

func (s *Service) remove(id uuid.UUID) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		openSessions.Dec()
	}
}

func (sess *Session) payload() orderlist.Payload {
	p := sess.editor.Payload(sess.WorkPackage)
	p.Project = sess.Project
	return p
}

func (sess *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:          sess.ID,
		Mode:        sess.Mode,
		WorkPackage: sess.WorkPackage,
		Project:     sess.Project,
		Document:    sess.Document,
		Items:       sess.editor.Items(),
		Categories:  sess.editor.Categories(),
		Groups:      sess.editor.Groups(),
	}
	undo := sess.editor.UndoStack()
	snap.UndoCount = len(undo)
	if len(undo) > 0 {
		last := undo[len(undo)-1]
		snap.LastDeleted = &last
	}
	return snap
}

// diff compares the submitted payload with the one the session was opened
// from. Failures are logged and yield no changes.
func (sess *Session) diff(payload orderlist.Payload, logger logrus.FieldLogger) jsondiff.Patch {
	if sess.baseline == nil {
		return nil
	}
	// The workflow state is not part of the baseline.
	payload.WorkflowState = ""
	target, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Warn("marshal submitted payload")
		return nil
	}
	patch, err := jsondiff.CompareJSON(sess.baseline, target)
	if err != nil {
		logger.WithError(err).Warn("diff procurement request")
		return nil
	}
	return patch
}

// checkCategory rejects categories outside the session's work package.
// An empty category is left to the editor's own validation.
func (sess *Session) checkCategory(category string) error {
	if category == "" {
		return nil
	}
	for _, c := range sess.ref.Index.CategoriesForWorkPackage(sess.WorkPackage) {
		if c.ID == category {
			return nil
		}
	}
	return fmt.Errorf("%w: %q not in %s", ErrForeignCategory, category, sess.WorkPackage)
}

func hasWorkPackage(idx *catalog.Index, wp string) bool {
	if wp == "" {
		return false
	}
	for _, p := range idx.WorkPackages() {
		if p.ID == wp {
			return true
		}
	}
	return false
}

func findItem(opts []catalog.ItemOption, id string) (catalog.ItemOption, bool) {
	for _, o := range opts {
		if o.ID == id {
			return o, true
		}
	}
	return catalog.ItemOption{}, false
}

func countRequested(items []orderlist.LineItem) int {
	n := 0
	for _, it := range items {
		if it.Status() == enum.ItemStatusRequest {
			n++
		}
	}
	return n
}

// decodeEmbedded decodes a JSON field that the document store may return
// either as an object or as a JSON-encoded string.
func decodeEmbedded(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		raw = json.RawMessage(s)
	}
	return json.Unmarshal(raw, out)
}
