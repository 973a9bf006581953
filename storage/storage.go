package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"quicktask/domain"
)

type tableClient interface {
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage keeps tasks in an Azure table partitioned by owner and publishes
// task events to an Azure queue.
type Storage struct {
	taskTable   tableClient
	eventsQueue queueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, fmt.Errorf("tables client: %w", err)
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}
	return &Storage{taskTable: svc.NewClient(tasksTable), eventsQueue: q}, nil
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Priority     string `json:"Priority"`
	Status       string `json:"Status"`
	DueDate      string `json:"DueDate,omitempty"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

func encodeTaskEntity(t domain.Task) ([]byte, error) {
	ent := taskEntity{
		PartitionKey: t.OwnerID,
		RowKey:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Priority:     string(t.Priority),
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(ent)
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.Priority(ent.Priority),
		Status:      domain.Status(ent.Status),
	}
	var err error
	if t.CreatedAt, err = parseEntityTime(ent.CreatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("CreatedAt: %w", err)
	}
	if t.UpdatedAt, err = parseEntityTime(ent.UpdatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("UpdatedAt: %w", err)
	}
	if ent.DueDate != "" {
		due, err := time.Parse(time.RFC3339Nano, ent.DueDate)
		if err != nil {
			return domain.Task{}, fmt.Errorf("DueDate: %w", err)
		}
		t.DueDate = &due
	}
	return t, nil
}

func parseEntityTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

// ListTasks retrieves the owner's tasks in row key order, with status and
// priority equality evaluated by the table service.
func (s *Storage) ListTasks(ctx context.Context, ownerID string, c domain.Criteria) ([]domain.Task, error) {
	filter := taskFilter(ownerID, c)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, fmt.Errorf("decode task: %w", err)
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// GetTask loads a single task from the owner's partition.
func (s *Storage) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, ownerID, id, nil)
	if err != nil {
		return domain.Task{}, mapTableError("get task", err)
	}
	return decodeTaskEntity(ent.Value)
}

// InsertTask adds a new task entity.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := encodeTaskEntity(t)
	if err != nil {
		return err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return mapTableError("insert task", err)
	}
	return nil
}

// ReplaceTask overwrites an existing task entity. Concurrent writers are
// last-write-wins.
func (s *Storage) ReplaceTask(ctx context.Context, t domain.Task) error {
	payload, err := encodeTaskEntity(t)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		return mapTableError("replace task", err)
	}
	return nil
}

// DeleteTask removes a task entity from the owner's partition.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, id string) error {
	et := azcore.ETagAny
	if _, err := s.taskTable.DeleteEntity(ctx, ownerID, id, &aztables.DeleteEntityOptions{IfMatch: &et}); err != nil {
		return mapTableError("delete task", err)
	}
	return nil
}

// PublishTaskEvent sends ev to the task events queue.
func (s *Storage) PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.eventsQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
		return fmt.Errorf("enqueue task event: %w", err)
	}
	return nil
}

func mapTableError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return domain.ErrTaskNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
