package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnknownTask is returned by RunNow for a name that was never added
var ErrUnknownTask = errors.New("unknown task")

// TaskFunc represents a scheduled task function
type TaskFunc func(ctx context.Context) error

// Task represents a scheduled task
type Task struct {
	Name     string
	Interval time.Duration
	Func     TaskFunc
	LastRun  time.Time
	NextRun  time.Time
	Running  bool
	Enabled  bool
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks   map[string]*Task
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	log     logrus.FieldLogger
}

// NewScheduler creates a new scheduler
func NewScheduler(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// AddTask adds a new scheduled task
func (s *Scheduler) AddTask(name string, interval time.Duration, fn TaskFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tasks[name] = &Task{
		Name:     name,
		Interval: interval,
		Func:     fn,
		NextRun:  time.Now().Add(interval),
		Enabled:  true,
	}
}

// EnableTask enables a task and schedules its next run one interval from now
func (s *Scheduler) EnableTask(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	task, ok := s.tasks[name]
	if !ok {
		return ErrUnknownTask
	}
	task.Enabled = true
	task.NextRun = time.Now().Add(task.Interval)
	return nil
}

// DisableTask stops a task from being scheduled; RunNow still works
func (s *Scheduler) DisableTask(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	task, ok := s.tasks[name]
	if !ok {
		return ErrUnknownTask
	}
	task.Enabled = false
	return nil
}

// RunNow runs a task immediately
func (s *Scheduler) RunNow(name string) error {
	s.mutex.RLock()
	task, ok := s.tasks[name]
	s.mutex.RUnlock()

	if !ok {
		return ErrUnknownTask
	}

	return s.runTask(task)
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return
	}
	s.running = true
	s.mutex.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.checkTasks()
			}
		}
	}()

	s.log.Info("Scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	s.mutex.Lock()
	s.running = false
	s.mutex.Unlock()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) checkTasks() {
	s.mutex.RLock()
	now := time.Now()
	tasksToRun := make([]*Task, 0)

	for _, task := range s.tasks {
		if task.Enabled && !task.Running && now.After(task.NextRun) {
			tasksToRun = append(tasksToRun, task)
		}
	}
	s.mutex.RUnlock()

	for _, task := range tasksToRun {
		go s.runTask(task)
	}
}

func (s *Scheduler) runTask(task *Task) error {
	s.mutex.Lock()
	task.Running = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		task.Running = false
		task.LastRun = time.Now()
		task.NextRun = time.Now().Add(task.Interval)
		s.mutex.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Minute)
	defer cancel()

	entry := s.log.WithField("task", task.Name)
	entry.Debug("Running task")
	start := time.Now()

	if err := task.Func(ctx); err != nil {
		entry.WithError(err).Warn("Task failed")
		return err
	}

	entry.WithField("duration", time.Since(start).String()).Debug("Task completed")
	return nil
}

// GetTasks returns information about all tasks
func (s *Scheduler) GetTasks() []TaskInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, TaskInfo{
			Name:     task.Name,
			Interval: task.Interval,
			LastRun:  task.LastRun,
			NextRun:  task.NextRun,
			Running:  task.Running,
			Enabled:  task.Enabled,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// TaskInfo holds information about a task
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"lastRun"`
	NextRun  time.Time     `json:"nextRun"`
	Running  bool          `json:"running"`
	Enabled  bool          `json:"enabled"`
}

// Pruner deletes records older than a cutoff
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PruneActivityTask removes fetch cycle records older than retention
func PruneActivityTask(p Pruner, retention time.Duration, log logrus.FieldLogger) TaskFunc {
	return func(ctx context.Context) error {
		removed, err := p.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if removed > 0 {
			log.WithField("removed", removed).Info("Pruned fetch cycle history")
		}
		return nil
	}
}

// SetupDefaultTasks registers the recurring maintenance tasks
func (s *Scheduler) SetupDefaultTasks(activityPrune TaskFunc) {
	// Trim the fetch cycle history every hour
	if activityPrune != nil {
		s.AddTask("activity_prune", time.Hour, activityPrune)
	}
}
