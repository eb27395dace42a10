package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/config"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Task is one recorded date to replay.
type Task struct {
	Date string
	Dir  string
}

func (t Task) String() string {
	return t.Date
}

type TaskResult struct {
	Task   Task
	Result *Result
	Error  error
}

// BatchResult summarises a multi-date replay. Results are sorted by date.
type BatchResult struct {
	Total   int
	Success int
	Failed  int
	Results []TaskResult
	Errors  []string
}

// Manager replays several dates concurrently. Each date gets its own
// session, so workers share nothing but the config.
type Manager struct {
	cfg     *config.Config
	workers int
	logger  *zap.Logger
}

func NewManager(cfg *config.Config, workers int, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cfg:     cfg,
		workers: workers,
		logger:  logger,
	}
}

// Tasks lists the date folders under dataDir within [from, to]. Empty bounds
// are open.
func Tasks(dataDir, from, to string) ([]Task, error) {
	for _, bound := range []string{from, to} {
		if bound != "" && !datePattern.MatchString(bound) {
			return nil, fmt.Errorf("invalid date bound %q (want YYYY-MM-DD)", bound)
		}
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	var tasks []Task
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !datePattern.MatchString(name) {
			continue
		}
		// YYYY-MM-DD compares lexicographically
		if (from != "" && name < from) || (to != "" && name > to) {
			continue
		}
		tasks = append(tasks, Task{Date: name, Dir: filepath.Join(dataDir, name)})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Date < tasks[j].Date })
	return tasks, nil
}

func (m *Manager) Execute(ctx context.Context, tasks []Task) (*BatchResult, error) {
	result := &BatchResult{Total: len(tasks)}

	if len(tasks) == 0 {
		return result, nil
	}

	jobs := make(chan Task, len(tasks))
	results := make(chan TaskResult, len(tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx, jobs, results)
		}()
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	for r := range results {
		if r.Error != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
		} else {
			result.Success++
		}
		result.Results = append(result.Results, r)
	}

	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].Task.Date < result.Results[j].Task.Date
	})
	sort.Strings(result.Errors)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (m *Manager) worker(ctx context.Context, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.logger.Info("replaying", zap.String("date", task.Date))
		res, err := Run(ctx, m.cfg, task.Dir, task.Date, m.logger)

		select {
		case <-ctx.Done():
			return
		case results <- TaskResult{Task: task, Result: res, Error: err}:
		}
	}
}
