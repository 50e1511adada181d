package draft

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aitoolflow/engine/pkg/client"
)

func TestFileStoreRoundTrip(t *testing.T) {
	b := newGatedBackend()
	d, ids := savedDraft(t, b)
	b.answer(ids[0]) <- []client.Tool{{ToolID: "jasper"}}
	_, err := d.FetchSuggestions(t.Context(), ids[0])
	require.NoError(t, err)

	store := FileStore{Path: filepath.Join(t.TempDir(), "draft.json")}
	require.NoError(t, store.Save(d))

	raw, err := os.ReadFile(store.Path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "jasper"), "suggestions must not be persisted")

	restored, err := store.Load(b)
	require.NoError(t, err)
	assert.Equal(t, Saved, restored.State())

	got, want := restored.Snapshot(), d.Snapshot()
	assert.Equal(t, *want.ID, *got.ID)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, ids, []uuid.UUID{got.Nodes[0].ID, got.Nodes[1].ID})
	assert.Nil(t, got.Nodes[0].Suggestions)
	assert.Equal(t, want.Title, got.Title)

	// The restored draft still knows its saved nodes, so a save stays a no-op.
	require.NoError(t, restored.Save(t.Context()))
}

func TestFileStoreMissingFile(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "absent.json")}
	d, err := store.Load(newGatedBackend())
	require.NoError(t, err)
	assert.Equal(t, Empty, d.State())
}

func TestFileStoreSavingBecomesEditing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.json")
	doc := `{"state":"saving","workflow":{"title":"t","category":"","description":"","is_template":false,"nodes":[]}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	d, err := FileStore{Path: path}.Load(newGatedBackend())
	require.NoError(t, err)
	assert.Equal(t, Editing, d.State())
	assert.Equal(t, "t", d.Snapshot().Title)
}

func TestFileStoreRejectsBadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"state":"bogus","workflow":{}}`), 0o600))
	_, err := FileStore{Path: path}.Load(newGatedBackend())
	require.Error(t, err)
}

func TestFileStoreKeepsEmptySavedWorkflow(t *testing.T) {
	ctx := t.Context()
	m := &mockBackend{}
	wfID := uuid.New()
	m.On("CreateWorkflow", mock.Anything, mock.Anything).
		Return(&client.Workflow{WorkflowID: wfID, Title: "bare"}, nil).Once()

	d := New(m)
	require.NoError(t, d.NewDraft())
	require.NoError(t, d.SetMeta(MetaPatch{Title: strp("bare")}))
	require.NoError(t, d.Save(ctx))

	store := FileStore{Path: filepath.Join(t.TempDir(), "draft.json")}
	require.NoError(t, store.Save(d))
	restored, err := store.Load(m)
	require.NoError(t, err)

	m.On("UpdateWorkflow", mock.Anything, wfID, mock.Anything).
		Return(&client.Workflow{WorkflowID: wfID, Title: "renamed"}, nil).Once()
	require.NoError(t, restored.SetMeta(MetaPatch{Title: strp("renamed")}))
	require.NoError(t, restored.Save(ctx))

	assert.Equal(t, wfID, *restored.Snapshot().ID)
	m.AssertExpectations(t)
}
