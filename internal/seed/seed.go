// Package seed loads catalog fixtures (tools, predefined workflows and node
// suggestions) from YAML and writes them idempotently.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/internal/repository"
	appErr "github.com/aitoolflow/engine/pkg/errors"
	"github.com/aitoolflow/engine/pkg/logger"
)

// namespace derives stable template and node ids from their keys, so
// re-seeding updates rows instead of duplicating them.
var namespace = uuid.MustParse("5f1d7c1e-2b8a-4c55-9d0e-7a3b8e6f4c21")

type Catalog struct {
	Tools     []Tool     `yaml:"tools"`
	Templates []Template `yaml:"templates"`
}

type Tool struct {
	ID           string   `yaml:"tool_id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Pricing      string   `yaml:"pricing"`
	Capabilities string   `yaml:"capabilities"`
	Outputs      string   `yaml:"outputs"`
	Tags         []string `yaml:"tags"`
	EaseOfUse    string   `yaml:"ease_of_use"`
}

type Template struct {
	Key         string `yaml:"key"`
	Title       string `yaml:"title"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Nodes       []Node `yaml:"nodes"`
}

type Node struct {
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Suggestions []Suggestion `yaml:"suggestions"`
}

type Suggestion struct {
	ToolID string `yaml:"tool_id"`
	Rank   int    `yaml:"rank"`
}

// Result counts what Apply wrote.
type Result struct {
	Tools       int
	Templates   int
	Suggestions int
}

func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "parse seed file")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

var pricing = map[string]bool{models.PricingFree: true, models.PricingPaid: true, models.PricingFreePlan: true}

func (c *Catalog) validate() error {
	tools := map[string]bool{}
	for _, t := range c.Tools {
		if t.ID == "" || t.Name == "" {
			return appErr.New(appErr.CodeInvalid, "every tool needs tool_id and name")
		}
		if tools[t.ID] {
			return appErr.Newf(appErr.CodeInvalid, "duplicate tool_id %q", t.ID)
		}
		if !pricing[t.Pricing] {
			return appErr.Newf(appErr.CodeInvalid, "tool %q: unknown pricing %q", t.ID, t.Pricing)
		}
		tools[t.ID] = true
	}
	keys := map[string]bool{}
	for _, tpl := range c.Templates {
		if tpl.Key == "" || tpl.Title == "" {
			return appErr.New(appErr.CodeInvalid, "every template needs key and title")
		}
		if keys[tpl.Key] {
			return appErr.Newf(appErr.CodeInvalid, "duplicate template key %q", tpl.Key)
		}
		keys[tpl.Key] = true
		for i, n := range tpl.Nodes {
			for _, s := range n.Suggestions {
				if !tools[s.ToolID] {
					return appErr.Newf(appErr.CodeInvalid, "template %q node %d: unknown tool %q", tpl.Key, i, s.ToolID)
				}
			}
		}
	}
	return nil
}

// TemplateID is the stable id of the template with the given key.
func TemplateID(key string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("template/"+key))
}

// NodeID is the stable id of the i-th node of a template.
func NodeID(key string, i int) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("template/%s/node/%d", key, i)))
}

// Apply upserts the whole catalog in one transaction.
func Apply(ctx context.Context, db *gorm.DB, c *Catalog) (Result, error) {
	var res Result
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tools := make([]models.AITool, len(c.Tools))
		for i, t := range c.Tools {
			tools[i] = models.AITool{
				ID:           t.ID,
				Name:         t.Name,
				Description:  t.Description,
				Pricing:      t.Pricing,
				Capabilities: t.Capabilities,
				Outputs:      t.Outputs,
				Tags:         models.TagsJSON(t.Tags...),
				EaseOfUse:    t.EaseOfUse,
			}
		}
		if err := repository.NewToolRepository(tx).Upsert(ctx, tools); err != nil {
			return err
		}
		res.Tools = len(tools)

		workflows := repository.NewWorkflowRepository(tx)
		var suggestions []models.NodeSuggestion
		for _, tpl := range c.Templates {
			w := &models.Workflow{
				ID:          TemplateID(tpl.Key),
				Title:       tpl.Title,
				Category:    tpl.Category,
				Description: tpl.Description,
				Nodes:       make([]models.WorkflowNode, len(tpl.Nodes)),
			}
			for i, n := range tpl.Nodes {
				nodeID := NodeID(tpl.Key, i)
				w.Nodes[i] = models.WorkflowNode{ID: nodeID, Title: n.Title, Description: n.Description}
				for _, s := range n.Suggestions {
					suggestions = append(suggestions, models.NodeSuggestion{NodeID: nodeID, ToolID: s.ToolID, Rank: s.Rank})
				}
			}
			if err := workflows.UpsertPredefined(ctx, w); err != nil {
				return err
			}
			res.Templates++
		}

		if err := repository.NewSuggestionRepository(tx).Upsert(ctx, suggestions); err != nil {
			return err
		}
		res.Suggestions = len(suggestions)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	logger.L().Info("catalog seeded",
		zap.Int("tools", res.Tools),
		zap.Int("templates", res.Templates),
		zap.Int("suggestions", res.Suggestions),
	)
	return res, nil
}
