package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/pkg/meili"
)

// Index defaults.
const (
	DefaultIndex = "markets"
	PrimaryKey   = "id"
)

// IndexSettings are applied to the index before every reload.
func IndexSettings() meili.Settings {
	return meili.Settings{
		FilterableAttributes: []string{"type", "scheduleDays", "province", "country", "_geo"},
		SearchableAttributes: []string{"name", "cityTown", "location", "province"},
		SortableAttributes:   []string{"name", "_geo"},
	}
}

// PublishSummary describes a completed index reload.
type PublishSummary struct {
	Index      string `json:"index"`
	Documents  int    `json:"documents"`
	TaskStatus string `json:"task_status"`
}

// Publisher replaces the contents of the search index with a document set.
type Publisher struct {
	client meili.Client
	index  string
}

// NewPublisher creates a Publisher for index (DefaultIndex when empty).
func NewPublisher(c meili.Client, index string) *Publisher {
	if index == "" {
		index = DefaultIndex
	}
	return &Publisher{client: c, index: index}
}

// Publish creates the index if needed, applies settings, removes every
// document and adds docs. Each step waits for its task before the next.
func (p *Publisher) Publish(ctx context.Context, docs []model.Document) (*PublishSummary, error) {
	log := zap.L().With(zap.String("phase", "publish"), zap.String("index", p.index))

	if err := p.createIndex(ctx); err != nil {
		return nil, err
	}

	info, err := p.client.UpdateSettings(ctx, p.index, IndexSettings())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: update index settings")
	}
	if _, err := p.wait(ctx, info); err != nil {
		return nil, eris.Wrap(err, "pipeline: update index settings")
	}
	log.Info("publish: settings configured")

	info, err = p.client.DeleteAllDocuments(ctx, p.index)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: clear index")
	}
	if _, err := p.wait(ctx, info); err != nil {
		return nil, eris.Wrap(err, "pipeline: clear index")
	}
	log.Info("publish: cleared existing documents")

	info, err = p.client.AddDocuments(ctx, p.index, docs, PrimaryKey)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: add documents")
	}
	task, err := p.wait(ctx, info)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: add documents")
	}

	log.Info("publish: complete", zap.Int("documents", len(docs)), zap.String("status", task.Status))
	return &PublishSummary{Index: p.index, Documents: len(docs), TaskStatus: task.Status}, nil
}

// createIndex tolerates an index that already exists.
func (p *Publisher) createIndex(ctx context.Context) error {
	log := zap.L().With(zap.String("phase", "publish"), zap.String("index", p.index))

	info, err := p.client.CreateIndex(ctx, p.index, PrimaryKey)
	if err != nil {
		var apiErr *meili.APIError
		if errors.As(err, &apiErr) && apiErr.Code == meili.CodeIndexAlreadyExists {
			log.Info("publish: index already exists")
			return nil
		}
		return eris.Wrap(err, "pipeline: create index")
	}

	task, err := p.client.WaitForTask(ctx, info.TaskUID)
	if err != nil {
		return eris.Wrap(err, "pipeline: create index")
	}
	if task.Status == meili.TaskFailed {
		if task.Error != nil && task.Error.Code == meili.CodeIndexAlreadyExists {
			log.Info("publish: index already exists")
			return nil
		}
		return eris.Wrap(taskErr(task), "pipeline: create index")
	}
	log.Info("publish: created index")
	return nil
}

func (p *Publisher) wait(ctx context.Context, info *meili.TaskInfo) (*meili.Task, error) {
	task, err := p.client.WaitForTask(ctx, info.TaskUID)
	if err != nil {
		return nil, err
	}
	if task.Status != meili.TaskSucceeded {
		return task, taskErr(task)
	}
	return task, nil
}

func taskErr(t *meili.Task) error {
	if t.Error != nil {
		return t.Error
	}
	return eris.Errorf("meili task %d ended %s", t.UID, t.Status)
}
