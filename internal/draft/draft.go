// Package draft holds a locally editable workflow and keeps it in step with
// the server copy.
package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aitoolflow/engine/pkg/client"
)

type State int

const (
	Empty State = iota
	Editing
	Saving
	Saved
	SaveFailed
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	case Saved:
		return "saved"
	case SaveFailed:
		return "save_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNoDraft        = errors.New("draft: no workflow being edited")
	ErrSaveInProgress = errors.New("draft: save in progress")
	ErrNotSaved       = errors.New("draft: workflow has not been saved")
	ErrUnknownNode    = errors.New("draft: unknown node")
	// ErrStale reports a suggestion result that was discarded because a newer
	// fetch superseded it or its node went away.
	ErrStale = errors.New("draft: suggestion result is stale")
)

// Backend persists workflows. *client.Client satisfies it.
type Backend interface {
	CreateWorkflow(ctx context.Context, w client.NewWorkflow) (*client.Workflow, error)
	UpdateWorkflow(ctx context.Context, id uuid.UUID, patch client.WorkflowPatch) (*client.Workflow, error)
	NodeSuggestions(ctx context.Context, workflowID, nodeID uuid.UUID) ([]client.Tool, error)
}

// ServerWorkflowRecord is the last workflow the server returned.
type ServerWorkflowRecord = client.Workflow

type Node struct {
	ID          uuid.UUID     `json:"node_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Suggestions []client.Tool `json:"-"`
}

type Workflow struct {
	ID          *uuid.UUID `json:"workflow_id,omitempty"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	IsTemplate  bool       `json:"is_template"`
	Nodes       []Node     `json:"nodes"`
}

func (w Workflow) clone() Workflow {
	out := w
	if w.ID != nil {
		id := *w.ID
		out.ID = &id
	}
	out.Nodes = make([]Node, len(w.Nodes))
	for i, n := range w.Nodes {
		out.Nodes[i] = n
		if n.Suggestions != nil {
			out.Nodes[i].Suggestions = append([]client.Tool{}, n.Suggestions...)
		}
	}
	return out
}

// MetaPatch changes workflow fields; nil fields are left alone.
type MetaPatch struct {
	Title       *string
	Category    *string
	Description *string
	IsTemplate  *bool
}

type savedNode struct {
	id          uuid.UUID
	title       string
	description string
}

type fetchTask struct {
	seq    uint64
	cancel context.CancelFunc
}

type Option func(*Draft)

func WithLogger(l *zap.Logger) Option {
	return func(d *Draft) { d.log = l }
}

// Draft is safe for concurrent use.
type Draft struct {
	backend Backend
	log     *zap.Logger

	mu      sync.Mutex
	state   State
	wf      Workflow
	server  *ServerWorkflowRecord
	saved   []savedNode
	fetches map[uuid.UUID]*fetchTask
	seq     uint64
}

func New(backend Backend, opts ...Option) *Draft {
	d := &Draft{
		backend: backend,
		log:     zap.NewNop(),
		fetches: map[uuid.UUID]*fetchTask{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Draft) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Snapshot returns a deep copy of the draft workflow.
func (d *Draft) Snapshot() Workflow {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wf.clone()
}

// Server returns the last record the server returned, or nil.
func (d *Draft) Server() *ServerWorkflowRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.server == nil {
		return nil
	}
	rec := *d.server
	rec.Nodes = append([]client.Node(nil), d.server.Nodes...)
	return &rec
}

// NewDraft discards any current draft and starts a blank one.
func (d *Draft) NewDraft() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Saving {
		return ErrSaveInProgress
	}
	d.cancelAllLocked()
	d.wf = Workflow{Nodes: []Node{}}
	d.server = nil
	d.saved = nil
	d.state = Editing
	return nil
}

// Load starts editing a workflow that already exists on the server.
func (d *Draft) Load(rec ServerWorkflowRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Saving {
		return ErrSaveInProgress
	}
	d.cancelAllLocked()
	id := rec.WorkflowID
	d.wf = Workflow{
		ID:          &id,
		Title:       rec.Title,
		Category:    rec.Category,
		Description: rec.Description,
		IsTemplate:  rec.IsPredefined,
		Nodes:       make([]Node, len(rec.Nodes)),
	}
	for i, n := range rec.Nodes {
		d.wf.Nodes[i] = Node{ID: n.NodeID, Title: n.Title, Description: n.Description}
	}
	d.setServerLocked(&rec)
	d.state = Editing
	return nil
}

// Reset drops the draft and returns to Empty.
func (d *Draft) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Saving {
		return ErrSaveInProgress
	}
	d.cancelAllLocked()
	d.wf = Workflow{}
	d.server = nil
	d.saved = nil
	d.state = Empty
	return nil
}

// editableLocked reports whether the draft accepts edits.
func (d *Draft) editableLocked() error {
	switch d.state {
	case Empty:
		return ErrNoDraft
	case Saving:
		return ErrSaveInProgress
	}
	return nil
}

func (d *Draft) SetMeta(p MetaPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editableLocked(); err != nil {
		return err
	}
	if p.Title != nil {
		d.wf.Title = *p.Title
	}
	if p.Category != nil {
		d.wf.Category = *p.Category
	}
	if p.Description != nil {
		d.wf.Description = *p.Description
	}
	if p.IsTemplate != nil {
		d.wf.IsTemplate = *p.IsTemplate
	}
	d.state = Editing
	return nil
}

// AddNode appends an empty node under a temporary id.
func (d *Draft) AddNode() (uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editableLocked(); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	d.wf.Nodes = append(d.wf.Nodes, Node{ID: id, Suggestions: []client.Tool{}})
	d.state = Editing
	return id, nil
}

func (d *Draft) UpdateNode(nodeID uuid.UUID, title, description string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editableLocked(); err != nil {
		return err
	}
	i := d.indexLocked(nodeID)
	if i < 0 {
		return ErrUnknownNode
	}
	d.wf.Nodes[i].Title = title
	d.wf.Nodes[i].Description = description
	d.state = Editing
	return nil
}

// RemoveNode deletes the node locally and cancels its in-flight fetch.
func (d *Draft) RemoveNode(nodeID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editableLocked(); err != nil {
		return err
	}
	i := d.indexLocked(nodeID)
	if i < 0 {
		return ErrUnknownNode
	}
	d.cancelLocked(nodeID)
	d.wf.Nodes = append(d.wf.Nodes[:i], d.wf.Nodes[i+1:]...)
	d.state = Editing
	return nil
}

func (d *Draft) indexLocked(nodeID uuid.UUID) int {
	for i, n := range d.wf.Nodes {
		if n.ID == nodeID {
			return i
		}
	}
	return -1
}

func (d *Draft) cancelLocked(nodeID uuid.UUID) {
	if t, ok := d.fetches[nodeID]; ok {
		t.cancel()
		delete(d.fetches, nodeID)
	}
}

func (d *Draft) cancelAllLocked() {
	for id, t := range d.fetches {
		t.cancel()
		delete(d.fetches, id)
	}
}

// FetchSuggestions loads suggestions for one node. A newer fetch for the same
// node supersedes an older one; a superseded or orphaned result is dropped and
// reported as ErrStale. The draft state is not changed.
func (d *Draft) FetchSuggestions(ctx context.Context, nodeID uuid.UUID) ([]client.Tool, error) {
	d.mu.Lock()
	if d.state == Empty {
		d.mu.Unlock()
		return nil, ErrNoDraft
	}
	if d.indexLocked(nodeID) < 0 {
		d.mu.Unlock()
		return nil, ErrUnknownNode
	}
	if d.wf.ID == nil {
		d.mu.Unlock()
		return nil, ErrNotSaved
	}
	workflowID := *d.wf.ID
	d.cancelLocked(nodeID)
	fctx, cancel := context.WithCancel(ctx)
	d.seq++
	seq := d.seq
	d.fetches[nodeID] = &fetchTask{seq: seq, cancel: cancel}
	d.mu.Unlock()

	tools, err := d.backend.NodeSuggestions(fctx, workflowID, nodeID)

	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.fetches[nodeID]
	if !ok || cur.seq != seq {
		cancel()
		d.log.Debug("discarding superseded suggestions", zap.String("node_id", nodeID.String()))
		return nil, ErrStale
	}
	delete(d.fetches, nodeID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch suggestions for node %s: %w", nodeID, err)
	}
	i := d.indexLocked(nodeID)
	if i < 0 || d.wf.ID == nil || *d.wf.ID != workflowID {
		return nil, ErrStale
	}
	if tools == nil {
		tools = []client.Tool{}
	}
	d.wf.Nodes[i].Suggestions = append([]client.Tool{}, tools...)
	return tools, nil
}

// FetchAllSuggestions fetches every node concurrently. Stale results are
// not errors.
func (d *Draft) FetchAllSuggestions(ctx context.Context) error {
	d.mu.Lock()
	ids := make([]uuid.UUID, len(d.wf.Nodes))
	for i, n := range d.wf.Nodes {
		ids[i] = n.ID
	}
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			_, err := d.FetchSuggestions(gctx, id)
			if errors.Is(err, ErrStale) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (d *Draft) nodesMatchSavedLocked() bool {
	if d.saved == nil || len(d.saved) != len(d.wf.Nodes) {
		return false
	}
	for i, n := range d.wf.Nodes {
		s := d.saved[i]
		if n.ID != s.id || n.Title != s.title || n.Description != s.description {
			return false
		}
	}
	return true
}

func (d *Draft) setServerLocked(rec *ServerWorkflowRecord) {
	cp := *rec
	cp.Nodes = append([]client.Node(nil), rec.Nodes...)
	d.server = &cp
	d.saved = make([]savedNode, len(d.wf.Nodes))
	for i, n := range d.wf.Nodes {
		d.saved[i] = savedNode{id: n.ID, title: n.Title, description: n.Description}
	}
}

// Save sends the draft to the server. A workflow that was never saved, one
// loaded from a predefined template, or one whose nodes changed since the
// last save is created anew; otherwise only its fields are updated. A
// concurrent Save returns ErrSaveInProgress.
func (d *Draft) Save(ctx context.Context) error {
	d.mu.Lock()
	switch d.state {
	case Empty:
		d.mu.Unlock()
		return ErrNoDraft
	case Saving:
		d.mu.Unlock()
		return ErrSaveInProgress
	case Saved:
		d.mu.Unlock()
		return nil
	}

	payload := d.wf.clone()
	// Predefined workflows are read-only on the server, so edits to one are
	// saved as the user's own copy.
	fromTemplate := d.server != nil && d.server.IsPredefined
	update := payload.ID != nil && !fromTemplate && d.nodesMatchSavedLocked()
	d.state = Saving
	d.mu.Unlock()

	var rec *client.Workflow
	var err error
	if update {
		title, category, description := payload.Title, payload.Category, payload.Description
		rec, err = d.backend.UpdateWorkflow(ctx, *payload.ID, client.WorkflowPatch{
			Title:       &title,
			Category:    &category,
			Description: &description,
		})
	} else {
		nw := client.NewWorkflow{
			Title:       payload.Title,
			Category:    payload.Category,
			Description: payload.Description,
			Nodes:       make([]client.NewNode, len(payload.Nodes)),
		}
		for i, n := range payload.Nodes {
			nw.Nodes[i] = client.NewNode{Title: n.Title, Description: n.Description}
		}
		rec, err = d.backend.CreateWorkflow(ctx, nw)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.state = SaveFailed
		d.log.Warn("workflow save failed", zap.Bool("update", update), zap.Error(err))
		return fmt.Errorf("save workflow: %w", err)
	}

	if update {
		merged := *d.server
		merged.Title, merged.Category, merged.Description = rec.Title, rec.Category, rec.Description
		d.setServerLocked(&merged)
	} else {
		id := rec.WorkflowID
		d.wf.ID = &id
		if fromTemplate {
			d.wf.IsTemplate = rec.IsPredefined
		}
		d.cancelAllLocked()
		for i := range d.wf.Nodes {
			if i < len(rec.Nodes) {
				d.wf.Nodes[i].ID = rec.Nodes[i].NodeID
			}
		}
		d.setServerLocked(rec)
	}
	d.state = Saved
	d.log.Info("workflow saved", zap.String("workflow_id", d.wf.ID.String()), zap.Bool("update", update))
	return nil
}
