package services_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/auth"
	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/internal/repository"
	"github.com/aitoolflow/engine/internal/services"
	"github.com/aitoolflow/engine/internal/testhelpers"
	appErr "github.com/aitoolflow/engine/pkg/errors"
	"github.com/aitoolflow/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Set(zap.NewNop())
	os.Exit(m.Run())
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, bool) {
	args := m.Called(ctx, nodeID, limit)
	tools, _ := args.Get(0).([]models.AITool)
	return tools, args.Bool(1)
}

func (m *mockCache) Set(ctx context.Context, nodeID uuid.UUID, limit int, tools []models.AITool) {
	m.Called(ctx, nodeID, limit, tools)
}

func (m *mockCache) Invalidate(ctx context.Context, nodeIDs ...uuid.UUID) {
	m.Called(ctx, nodeIDs)
}

type fixture struct {
	db          *gorm.DB
	auth        services.AuthService
	workflows   services.WorkflowService
	suggestions services.SuggestionService
	catalog     services.CatalogService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	wfRepo := repository.NewWorkflowRepository(db)
	issuer := auth.NewTokenIssuer([]byte("service-test-secret"), time.Hour)
	wfs := services.NewWorkflowService(wfRepo, nil)
	return &fixture{
		db:          db,
		auth:        services.NewAuthService(repository.NewUserRepository(db), issuer, nil, bcrypt.MinCost),
		workflows:   wfs,
		suggestions: services.NewSuggestionService(repository.NewSuggestionRepository(db), wfRepo, wfs, nil, 0),
		catalog:     services.NewCatalogService(repository.NewToolRepository(db), 0),
	}
}

func (f *fixture) register(t *testing.T, email string) uuid.UUID {
	t.Helper()
	_, u, err := f.auth.Register(context.Background(), &services.RegisterInput{Email: email, Password: "hunter22"})
	require.NoError(t, err)
	return u.ID
}

func createInput(title string, nodes ...string) *services.CreateWorkflowInput {
	in := &services.CreateWorkflowInput{Title: title, Category: "Marketing", Description: "desc"}
	for _, n := range nodes {
		in.Nodes = append(in.Nodes, services.NodeInput{Title: n, Description: n + " step"})
	}
	return in
}

func TestRegisterThenLoginVerifiesToSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	regToken, u, err := f.auth.Register(ctx, &services.RegisterInput{Email: "  Alice@Example.com ", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	loginToken, _, err := f.auth.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	a, err := f.auth.Verify(regToken)
	require.NoError(t, err)
	b, err := f.auth.Verify(loginToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, a)
	assert.Equal(t, a, b)
}

func TestRegisterRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "taken@example.com")

	cases := []struct {
		name  string
		input services.RegisterInput
		code  appErr.Code
	}{
		{"malformed email", services.RegisterInput{Email: "not-an-email", Password: "x"}, appErr.CodeInvalid},
		{"empty password", services.RegisterInput{Email: "new@example.com"}, appErr.CodeInvalid},
		{"duplicate email", services.RegisterInput{Email: "TAKEN@example.com", Password: "x"}, appErr.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.auth.Register(ctx, &tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErr.CodeOf(err))
		})
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com")

	_, _, unknown := f.auth.Login(ctx, "nobody@example.com", "hunter22")
	_, _, wrong := f.auth.Login(ctx, "alice@example.com", "wrong")
	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, unknown.Error(), wrong.Error())
	assert.ErrorIs(t, unknown, services.ErrInvalidCredentials)
}

func TestLoginUnknownEmailPaysHashCost(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison")
	}
	db := testhelpers.NewSQLiteDB(t)
	ctx := context.Background()
	svc := services.NewAuthService(repository.NewUserRepository(db), auth.NewTokenIssuer([]byte("s"), 0), nil, bcrypt.DefaultCost)
	_, _, err := svc.Register(ctx, &services.RegisterInput{Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	timeLogin := func(email string) time.Duration {
		start := time.Now()
		_, _, err := svc.Login(ctx, email, "wrong")
		require.ErrorIs(t, err, services.ErrInvalidCredentials)
		return time.Since(start)
	}
	wrong := timeLogin("alice@example.com")
	unknown := timeLogin("nobody@example.com")
	// Without a hash comparison an unknown email answers orders of magnitude faster.
	assert.Greater(t, unknown, wrong/4, "unknown=%s wrong=%s", unknown, wrong)
}

func TestDeleteAccountCascadesAndInvalidates(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	ctx := context.Background()
	sc := &mockCache{}
	users := repository.NewUserRepository(db)
	wfRepo := repository.NewWorkflowRepository(db)
	authSvc := services.NewAuthService(users, auth.NewTokenIssuer([]byte("s"), 0), sc, bcrypt.MinCost)
	wfs := services.NewWorkflowService(wfRepo, sc)

	_, u, err := authSvc.Register(ctx, &services.RegisterInput{Email: "gone@example.com", Password: "x"})
	require.NoError(t, err)
	w, err := wfs.Create(ctx, u.ID, createInput("flow", "a", "b"))
	require.NoError(t, err)

	sc.On("Invalidate", mock.Anything, mock.MatchedBy(func(ids []uuid.UUID) bool {
		return assert.ElementsMatch(t, w.NodeIDs(), ids)
	})).Once()

	require.NoError(t, authSvc.DeleteAccount(ctx, u.ID))
	sc.AssertExpectations(t)

	_, _, err = authSvc.Login(ctx, "gone@example.com", "x")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	_, err = wfs.Get(ctx, w.ID, u.ID)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestWorkflowCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")

	w, err := f.workflows.Create(ctx, alice, createInput("Marketing Funnel", "research", "launch"))
	require.NoError(t, err)
	require.Len(t, w.Nodes, 2)

	got, err := f.workflows.Get(ctx, w.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "Marketing Funnel", got.Title)
	assert.Equal(t, "Marketing", got.Category)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "research", got.Nodes[0].Title)
	assert.Equal(t, "launch", got.Nodes[1].Title)
	assert.Equal(t, w.Nodes[0].ID, got.Nodes[0].ID)

	empty, err := f.workflows.Create(ctx, alice, createInput("Empty"))
	require.NoError(t, err)
	got, err = f.workflows.Get(ctx, empty.ID, alice)
	require.NoError(t, err)
	assert.NotNil(t, got.Nodes)
	assert.Empty(t, got.Nodes)
}

func TestWorkflowOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")

	w, err := f.workflows.Create(ctx, alice, createInput("private", "a"))
	require.NoError(t, err)

	_, err = f.workflows.Get(ctx, w.ID, bob)
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))

	title := "hijacked"
	_, err = f.workflows.Update(ctx, w.ID, bob, &services.UpdateWorkflowInput{Title: &title})
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))

	err = f.workflows.Delete(ctx, w.ID, bob)
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))

	_, err = f.workflows.Duplicate(ctx, w.ID, bob)
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))

	got, err := f.workflows.Get(ctx, w.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Title)

	mine, err := f.workflows.ListByOwner(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestWorkflowUpdateIsScalarOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	w, err := f.workflows.Create(ctx, alice, createInput("before", "keep-1", "keep-2"))
	require.NoError(t, err)

	title, desc := "after", ""
	updated, err := f.workflows.Update(ctx, w.ID, alice, &services.UpdateWorkflowInput{Title: &title, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, "", updated.Description)
	assert.Equal(t, "Marketing", updated.Category)

	got, err := f.workflows.Get(ctx, w.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, "", got.Description)
	assert.Len(t, got.Nodes, 2)

	_, err = f.workflows.Update(ctx, uuid.New(), alice, &services.UpdateWorkflowInput{Title: &title})
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestWorkflowDeleteThenGetIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	w, err := f.workflows.Create(ctx, alice, createInput("short-lived", "a"))
	require.NoError(t, err)

	require.NoError(t, f.workflows.Delete(ctx, w.ID, alice))

	_, err = f.workflows.Get(ctx, w.ID, alice)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	err = f.workflows.Delete(ctx, w.ID, alice)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound), "deleting a missing id is not_found")
}

func TestWorkflowDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")

	src, err := f.workflows.Create(ctx, alice, createInput("original", "one", "two", "three"))
	require.NoError(t, err)

	cp, err := f.workflows.Duplicate(ctx, src.ID, alice)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, src.Title, cp.Title)
	assert.False(t, cp.IsPredefined)
	require.Len(t, cp.Nodes, 3)
	srcIDs := map[uuid.UUID]bool{}
	for _, id := range src.NodeIDs() {
		srcIDs[id] = true
	}
	for i, n := range cp.Nodes {
		assert.Equal(t, src.Nodes[i].Title, n.Title)
		assert.False(t, srcIDs[n.ID], "node ids are fresh")
	}

	tpl := testhelpers.InsertTemplate(t, f.db, "Podcast", "record", "publish")
	fromTpl, err := f.workflows.Duplicate(ctx, tpl.ID, bob)
	require.NoError(t, err)
	assert.True(t, fromTpl.OwnedBy(bob))
	assert.False(t, fromTpl.IsPredefined)
	assert.Len(t, fromTpl.Nodes, 2)
}

func TestPredefinedWorkflowsAreReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.register(t, "bob@example.com")
	tpl := testhelpers.InsertTemplate(t, f.db, "Blog", "outline")

	got, err := f.workflows.Get(ctx, tpl.ID, bob)
	require.NoError(t, err)
	assert.True(t, got.IsPredefined)

	templates, err := f.workflows.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)

	title := "mine now"
	_, err = f.workflows.Update(ctx, tpl.ID, bob, &services.UpdateWorkflowInput{Title: &title})
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))
	assert.True(t, appErr.IsCode(f.workflows.Delete(ctx, tpl.ID, bob), appErr.CodeForbidden))
}

func TestSuggestionsForWorkflowNode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")

	tools := make([]models.AITool, 0, 7)
	ranks := map[string]int{}
	order := []string{}
	for i, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7"} {
		tools = append(tools, testhelpers.Tool(id, "Tool "+id, models.PricingFree))
		ranks[id] = 7 - i
		order = append(order, id)
	}
	testhelpers.InsertTools(t, f.db, tools...)

	w, err := f.workflows.Create(ctx, alice, createInput("flow", "a", "b"))
	require.NoError(t, err)
	testhelpers.Suggest(t, f.db, w.Nodes[0].ID, ranks, order...)

	got, err := f.suggestions.ForWorkflowNode(ctx, w.ID, w.Nodes[0].ID, alice)
	require.NoError(t, err)
	require.Len(t, got, services.DefaultSuggestionLimit)
	assert.Equal(t, "t7", got[0].ID)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, ranks[got[i-1].ID], ranks[got[i].ID])
	}

	none, err := f.suggestions.ForWorkflowNode(ctx, w.ID, w.Nodes[1].ID, alice)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	foreign, err := f.suggestions.ForWorkflowNode(ctx, w.ID, uuid.New(), alice)
	require.NoError(t, err)
	assert.Empty(t, foreign, "nodes outside the workflow yield an empty list")

	_, err = f.suggestions.ForWorkflowNode(ctx, w.ID, w.Nodes[0].ID, bob)
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))

	_, err = f.suggestions.ForWorkflowNode(ctx, uuid.New(), w.Nodes[0].ID, alice)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	three, err := f.suggestions.SuggestionsForNode(ctx, w.Nodes[0].ID, 3)
	require.NoError(t, err)
	assert.Len(t, three, 3)
}

func TestSuggestionsUseCache(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	ctx := context.Background()
	testhelpers.InsertTools(t, db, testhelpers.Tool("t1", "One", models.PricingFree))
	node := uuid.New()
	testhelpers.Suggest(t, db, node, map[string]int{"t1": 1}, "t1")

	sc := &mockCache{}
	wfRepo := repository.NewWorkflowRepository(db)
	svc := services.NewSuggestionService(repository.NewSuggestionRepository(db), wfRepo, services.NewWorkflowService(wfRepo, sc), sc, 5)

	sc.On("Get", mock.Anything, node, 5).Return(nil, false).Once()
	sc.On("Set", mock.Anything, node, 5, mock.MatchedBy(func(tools []models.AITool) bool {
		return len(tools) == 1 && tools[0].ID == "t1"
	})).Once()
	got, err := svc.SuggestionsForNode(ctx, node, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	cached := []models.AITool{{ID: "cached"}}
	sc.On("Get", mock.Anything, node, 5).Return(cached, true).Once()
	got, err = svc.SuggestionsForNode(ctx, node, 5)
	require.NoError(t, err)
	assert.Equal(t, cached, got)

	sc.AssertExpectations(t)
}

func TestCatalogSearchPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var tools []models.AITool
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		tools = append(tools, testhelpers.Tool(id, "Writer "+id, models.PricingFree, "writing"))
	}
	tools = append(tools, testhelpers.Tool("paid", "Paid Writer", models.PricingPaid, "writing"))
	testhelpers.InsertTools(t, f.db, tools...)

	filters := repository.ToolFilters{Pricing: "Free", Tags: "writing"}
	first, err := f.catalog.Search(ctx, filters, 1)
	require.NoError(t, err)
	assert.Len(t, first, services.DefaultPageSize)
	for _, tool := range first {
		assert.Equal(t, models.PricingFree, tool.Pricing)
		assert.Contains(t, tool.TagList(), "writing")
	}

	second, err := f.catalog.Search(ctx, filters, 2)
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, "Writer f", second[0].Name)

	tool, err := f.catalog.GetTool(ctx, "paid")
	require.NoError(t, err)
	assert.Equal(t, "Paid Writer", tool.Name)

	_, err = f.catalog.GetTool(ctx, "nope")
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

// blockingSuggestions holds ToolsForNode open until release is closed.
type blockingSuggestions struct {
	entered chan context.Context
	release chan struct{}
}

func (b *blockingSuggestions) ToolsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, error) {
	b.entered <- ctx
	<-b.release
	return []models.AITool{{ID: "shared"}}, nil
}

func (b *blockingSuggestions) Upsert(context.Context, []models.NodeSuggestion) error { return nil }

func TestSuggestionLoadSurvivesCancelledCaller(t *testing.T) {
	repo := &blockingSuggestions{entered: make(chan context.Context, 1), release: make(chan struct{})}
	svc := services.NewSuggestionService(repo, nil, nil, nil, 5)
	node := uuid.New()

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.SuggestionsForNode(first, node, 5)
		firstDone <- err
	}()
	loadCtx := <-repo.entered

	cancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)
	assert.NoError(t, loadCtx.Err(), "shared load must not inherit the caller's cancellation")

	secondDone := make(chan []models.AITool, 1)
	go func() {
		tools, err := svc.SuggestionsForNode(context.Background(), node, 5)
		assert.NoError(t, err)
		secondDone <- tools
	}()
	close(repo.release)

	select {
	case tools := <-secondDone:
		require.Len(t, tools, 1)
		assert.Equal(t, "shared", tools[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not receive the result")
	}
}
