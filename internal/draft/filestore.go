package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileStore persists a draft as a JSON document. Suggestions are not stored.
type FileStore struct {
	Path string
}

type storedNode struct {
	ID          uuid.UUID `json:"node_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

type storedDraft struct {
	State    string                `json:"state"`
	Workflow Workflow              `json:"workflow"`
	Server   *ServerWorkflowRecord `json:"server,omitempty"`
	Saved    []storedNode          `json:"saved_nodes"`
}

func parseState(s string) (State, error) {
	for st := Empty; st <= SaveFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return Empty, fmt.Errorf("draft: unknown state %q", s)
}

// Save writes the draft atomically through a temp file in the same directory.
func (f FileStore) Save(d *Draft) error {
	d.mu.Lock()
	doc := storedDraft{State: d.state.String(), Workflow: d.wf.clone()}
	if doc.Workflow.Nodes == nil {
		doc.Workflow.Nodes = []Node{}
	}
	if d.server != nil {
		rec := *d.server
		doc.Server = &rec
	}
	if d.saved != nil {
		doc.Saved = make([]storedNode, 0, len(d.saved))
	}
	for _, n := range d.saved {
		doc.Saved = append(doc.Saved, storedNode{ID: n.id, Title: n.title, Description: n.description})
	}
	d.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".draft-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write draft: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close draft: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace draft: %w", err)
	}
	return nil
}

// Load restores a draft bound to backend. A missing file yields an empty
// draft. A draft persisted mid-save comes back as Editing.
func (f FileStore) Load(backend Backend, opts ...Option) (*Draft, error) {
	d := New(backend, opts...)

	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}

	var doc storedDraft
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	st, err := parseState(doc.State)
	if err != nil {
		return nil, err
	}
	if st == Saving {
		st = Editing
	}

	d.state = st
	d.wf = doc.Workflow
	if d.wf.Nodes == nil {
		d.wf.Nodes = []Node{}
	}
	d.server = doc.Server
	if d.server != nil {
		// A saved workflow may have no nodes; nil means never saved.
		d.saved = make([]savedNode, 0, len(doc.Saved))
	}
	for _, n := range doc.Saved {
		d.saved = append(d.saved, savedNode{id: n.ID, title: n.Title, description: n.Description})
	}
	d.log.Debug("draft restored", zap.String("path", f.Path), zap.String("state", st.String()))
	return d, nil
}
