package seed_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/internal/repository"
	"github.com/aitoolflow/engine/internal/seed"
	"github.com/aitoolflow/engine/internal/testhelpers"
	appErr "github.com/aitoolflow/engine/pkg/errors"
	"github.com/aitoolflow/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Set(zap.NewNop())
	os.Exit(m.Run())
}

func TestApplyIsIdempotent(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	ctx := context.Background()
	c, err := seed.LoadFile("testdata/catalog.yaml")
	require.NoError(t, err)

	res, err := seed.Apply(ctx, db, c)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{Tools: 3, Templates: 1, Suggestions: 3}, res)

	_, err = seed.Apply(ctx, db, c)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.AITool{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
	require.NoError(t, db.Model(&models.Workflow{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	require.NoError(t, db.Model(&models.WorkflowNode{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
	require.NoError(t, db.Model(&models.NodeSuggestion{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)

	templates, err := repository.NewWorkflowRepository(db).ListPredefined(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	tpl := templates[0]
	assert.Equal(t, seed.TemplateID("blog-post"), tpl.ID)
	assert.Nil(t, tpl.UserID)
	require.Len(t, tpl.Nodes, 2)
	assert.Equal(t, "Outline", tpl.Nodes[0].Title)

	tools, err := repository.NewSuggestionRepository(db).ToolsForNode(ctx, seed.NodeID("blog-post", 0), 5)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "jasper", tools[0].ID)
	assert.Equal(t, []string{"writing", "marketing"}, tools[0].TagList())
}

func TestApplyPrunesRemovedTemplateNodes(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	ctx := context.Background()
	c, err := seed.LoadFile("testdata/catalog.yaml")
	require.NoError(t, err)
	_, err = seed.Apply(ctx, db, c)
	require.NoError(t, err)

	c.Templates[0].Nodes = c.Templates[0].Nodes[:1]
	c.Templates[0].Title = "Blog Post v2"
	_, err = seed.Apply(ctx, db, c)
	require.NoError(t, err)

	var tpl models.Workflow
	require.NoError(t, repository.NewWorkflowRepository(db).GetWithNodes(ctx, seed.TemplateID("blog-post"), &tpl))
	assert.Equal(t, "Blog Post v2", tpl.Title)
	assert.Len(t, tpl.Nodes, 1)

	var count int64
	require.NoError(t, db.Model(&models.NodeSuggestion{}).Where("node_id = ?", seed.NodeID("blog-post", 1)).Count(&count).Error)
	assert.Zero(t, count)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "tools:\n  - tool_id: a\n    name: A\n    pricing: Free\n    colour: red\n",
		"bad pricing":      "tools:\n  - tool_id: a\n    name: A\n    pricing: Cheap\n",
		"duplicate tool":   "tools:\n  - {tool_id: a, name: A, pricing: Free}\n  - {tool_id: a, name: B, pricing: Free}\n",
		"unknown tool ref": "templates:\n  - key: k\n    title: T\n    nodes:\n      - title: n\n        suggestions: [{tool_id: ghost, rank: 1}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := seed.Parse(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
		})
	}
}
