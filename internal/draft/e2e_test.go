package draft_test

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aitoolflow/engine/internal/api"
	"github.com/aitoolflow/engine/internal/auth"
	"github.com/aitoolflow/engine/internal/draft"
	"github.com/aitoolflow/engine/internal/testhelpers"
	"github.com/aitoolflow/engine/pkg/client"
	"github.com/aitoolflow/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Set(zap.NewNop())
	os.Exit(m.Run())
}

func TestDraftAgainstAPI(t *testing.T) {
	ctx := context.Background()
	db := testhelpers.NewSQLiteDB(t)
	testhelpers.InsertTools(t, db,
		testhelpers.Tool("jasper", "Jasper", "Paid", "writing"),
		testhelpers.Tool("quillbot", "QuillBot", "Free", "writing"),
	)
	srv := httptest.NewServer(api.New(api.Options{
		DB:         db,
		Tokens:     auth.NewTokenIssuer([]byte("draft-e2e-secret"), time.Hour),
		BcryptCost: bcrypt.MinCost,
	}))
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	_, err := c.Register(ctx, "writer@example.com", "pw", nil, nil)
	require.NoError(t, err)

	d := draft.New(c)
	require.NoError(t, d.NewDraft())
	title := "Blog post"
	require.NoError(t, d.SetMeta(draft.MetaPatch{Title: &title}))
	first, err := d.AddNode()
	require.NoError(t, err)
	require.NoError(t, d.UpdateNode(first, "Outline", "structure"))
	second, err := d.AddNode()
	require.NoError(t, err)
	require.NoError(t, d.UpdateNode(second, "Polish", ""))

	require.NoError(t, d.Save(ctx))
	snap := d.Snapshot()
	require.NotNil(t, snap.ID)

	stored, err := c.GetWorkflow(ctx, *snap.ID)
	require.NoError(t, err)
	require.Len(t, stored.Nodes, 2)
	assert.Equal(t, stored.Nodes[0].NodeID, snap.Nodes[0].ID)
	assert.Equal(t, "Polish", stored.Nodes[1].Title)

	testhelpers.Suggest(t, db, snap.Nodes[0].ID, map[string]int{"jasper": 2, "quillbot": 1}, "jasper", "quillbot")
	require.NoError(t, d.FetchAllSuggestions(ctx))
	got := d.Snapshot()
	require.Len(t, got.Nodes[0].Suggestions, 2)
	assert.Equal(t, "quillbot", got.Nodes[0].Suggestions[0].ToolID)
	assert.Empty(t, got.Nodes[1].Suggestions)

	category := "Content"
	require.NoError(t, d.SetMeta(draft.MetaPatch{Category: &category}))
	require.NoError(t, d.Save(ctx))
	assert.Equal(t, *snap.ID, *d.Snapshot().ID, "field edits update in place")

	stored, err = c.GetWorkflow(ctx, *snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "Content", stored.Category)
}

func TestDraftEditsTemplateAsCopy(t *testing.T) {
	ctx := context.Background()
	db := testhelpers.NewSQLiteDB(t)
	tpl := testhelpers.InsertTemplate(t, db, "Podcast", "Record", "Publish")
	srv := httptest.NewServer(api.New(api.Options{
		DB:         db,
		Tokens:     auth.NewTokenIssuer([]byte("draft-e2e-secret"), time.Hour),
		BcryptCost: bcrypt.MinCost,
	}))
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	_, err := c.Register(ctx, "host@example.com", "pw", nil, nil)
	require.NoError(t, err)

	rec, err := c.GetWorkflow(ctx, tpl.ID)
	require.NoError(t, err)
	d := draft.New(c)
	require.NoError(t, d.Load(*rec))

	title := "My podcast"
	require.NoError(t, d.SetMeta(draft.MetaPatch{Title: &title}))
	require.NoError(t, d.Save(ctx))
	assert.Equal(t, draft.Saved, d.State())

	snap := d.Snapshot()
	require.NotNil(t, snap.ID)
	assert.NotEqual(t, tpl.ID, *snap.ID)

	own, err := c.GetWorkflow(ctx, *snap.ID)
	require.NoError(t, err)
	assert.False(t, own.IsPredefined)
	assert.Equal(t, "My podcast", own.Title)
	require.Len(t, own.Nodes, 2)

	unchanged, err := c.GetWorkflow(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Podcast", unchanged.Title)
}
