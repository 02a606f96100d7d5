package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ITaskManager определяет интерфейс для управления фоновыми задачами
type ITaskManager interface {
	SubmitTask(ctx context.Context, taskFunc TaskFunc, params interface{}) (uuid.UUID, error)
	SubmitTaskWithOwner(ctx context.Context, taskFunc TaskFunc, params interface{}, ownerID string) (uuid.UUID, error)
	GetTask(taskID uuid.UUID) (*Task, error)
	ListTasksByOwner(ownerID string) []*Task
	CancelTask(taskID uuid.UUID) error
	CleanupTasks(age time.Duration)
	Shutdown(ctx context.Context) error
}

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context, params interface{}) (interface{}, error)

// Task представляет асинхронную задачу
type Task struct {
	ID        uuid.UUID
	OwnerID   string
	Status    TaskStatus
	Message   string
	Result    interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
	cancel    context.CancelFunc
}

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks int
}

// TaskManager управляет асинхронными задачами в рамках процесса
type TaskManager struct {
	tasks    map[uuid.UUID]*Task
	mu       sync.RWMutex
	maxTasks int
	closing  chan struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger
}

var _ ITaskManager = (*TaskManager)(nil)

// New создает новый экземпляр TaskManager
func New(cfg Config, logger *zap.Logger) (*TaskManager, error) {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TaskManager{
		tasks:    make(map[uuid.UUID]*Task),
		maxTasks: maxTasks,
		closing:  make(chan struct{}),
		logger:   logger.Named("TaskManager"),
	}, nil
}

// SubmitTask создает и запускает новую задачу
func (tm *TaskManager) SubmitTask(ctx context.Context, taskFunc TaskFunc, params interface{}) (uuid.UUID, error) {
	return tm.SubmitTaskWithOwner(ctx, taskFunc, params, "")
}

// SubmitTaskWithOwner создает и запускает новую задачу с указанием владельца
func (tm *TaskManager) SubmitTaskWithOwner(ctx context.Context, taskFunc TaskFunc, params interface{}, ownerID string) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	select {
	case <-tm.closing:
		return uuid.UUID{}, errors.New("task manager is shutting down")
	default:
	}

	// Проверка maxTasks (под блокировкой)
	activeTasks := 0
	for _, task := range tm.tasks {
		if task.Status == TaskStatusPending || task.Status == TaskStatusRunning {
			activeTasks++
		}
	}
	if activeTasks >= tm.maxTasks {
		return uuid.UUID{}, errors.New("maximum number of active tasks exceeded")
	}

	taskID := uuid.New()

	// Задача живет в собственном контексте: отмена HTTP-запроса,
	// породившего её, не должна прерывать выполнение.
	taskCtx, cancel := context.WithCancel(context.Background())

	task := &Task{
		ID:        taskID,
		OwnerID:   ownerID,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		cancel:    cancel,
	}
	tm.tasks[taskID] = task

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.runTask(taskCtx, task, taskFunc, params)
	}()

	return taskID, nil
}

// runTask выполняет задачу и обновляет ее статус
func (tm *TaskManager) runTask(ctx context.Context, task *Task, taskFunc TaskFunc, params interface{}) {
	tm.updateTaskStatus(task, TaskStatusRunning, "task started", nil)

	result, err := taskFunc(ctx, params)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			tm.logger.Info("Task context cancelled", zap.String("taskID", task.ID.String()))
			tm.updateTaskStatus(task, TaskStatusCancelled, "task cancelled", nil)
		} else {
			tm.logger.Error("Task context error", zap.String("taskID", task.ID.String()), zap.Error(ctx.Err()))
			tm.updateTaskStatus(task, TaskStatusFailed, fmt.Sprintf("context error: %v", ctx.Err()), nil)
		}
		return
	}

	if err != nil {
		tm.logger.Error("Task finished with error", zap.String("taskID", task.ID.String()), zap.Error(err))
		tm.updateTaskStatus(task, TaskStatusFailed, fmt.Sprintf("error: %v", err), nil)
		return
	}

	tm.logger.Info("Task completed", zap.String("taskID", task.ID.String()))
	tm.updateTaskStatus(task, TaskStatusCompleted, "task completed", result)
}

// updateTaskStatus обновляет статус задачи
func (tm *TaskManager) updateTaskStatus(task *Task, status TaskStatus, message string, result interface{}) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task.Status = status
	task.Message = message
	task.UpdatedAt = time.Now()
	if result != nil {
		task.Result = result
	}

	tm.logger.Debug("Task status updated",
		zap.String("taskID", task.ID.String()),
		zap.String("newStatus", string(task.Status)),
		zap.String("message", task.Message))
}

// GetTask возвращает информацию о задаче по ID
func (tm *TaskManager) GetTask(taskID uuid.UUID) (*Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return task, nil
}

// ListTasksByOwner возвращает задачи, принадлежащие владельцу
func (tm *TaskManager) ListTasksByOwner(ownerID string) []*Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	var out []*Task
	for _, task := range tm.tasks {
		if task.OwnerID == ownerID {
			out = append(out, task)
		}
	}
	return out
}

// CancelTask отменяет выполнение задачи
func (tm *TaskManager) CancelTask(taskID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}

	if task.Status != TaskStatusPending && task.Status != TaskStatusRunning {
		return fmt.Errorf("cannot cancel task in status %s", task.Status)
	}

	if task.cancel != nil {
		task.cancel()
	}

	task.Status = TaskStatusCancelled
	task.Message = "task cancelled by owner"
	task.UpdatedAt = time.Now()
	return nil
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (tm *TaskManager) CleanupTasks(age time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for id, task := range tm.tasks {
		if (task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed || task.Status == TaskStatusCancelled) &&
			now.Sub(task.UpdatedAt) > age {
			delete(tm.tasks, id)
		}
	}
}

// Shutdown ожидает завершения всех задач с таймаутом
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.mu.Lock()
	select {
	case <-tm.closing:
	default:
		close(tm.closing)
	}
	tm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for tasks to finish")
	}
}
