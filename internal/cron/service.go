package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Service owns the job table and fires jobs on schedule. Cron-kind
// jobs go through robfig/cron; "every" and "at" jobs are driven by a
// one-second poll loop. Jobs persist as JSON at path.
type Service struct {
	path string

	// OnJob runs a due job and returns its result text. Set by the
	// gateway before Start.
	OnJob func(job CronJob) (string, error)

	mu      sync.Mutex
	jobs    []CronJob
	sched   *rcron.Cron
	entries map[string]rcron.EntryID
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewService(path string) *Service {
	return &Service{
		path:    path,
		entries: make(map[string]rcron.EntryID),
	}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if err := s.load(); err != nil {
		log.Printf("[cron] load jobs warning: %v", err)
	}

	s.sched = rcron.New(rcron.WithSeconds())

	s.mu.Lock()
	for i := range s.jobs {
		if s.jobs[i].Enabled && s.jobs[i].Schedule.Kind == KindCron {
			s.register(&s.jobs[i])
		}
	}
	n := len(s.jobs)
	s.mu.Unlock()

	s.sched.Start()
	log.Printf("[cron] started, %d jobs loaded", n)

	go s.pollLoop(runCtx)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	return nil
}

// register adds a cron-kind job to the scheduler. Caller holds s.mu.
func (s *Service) register(job *CronJob) {
	snapshot := *job
	id, err := s.sched.AddFunc(job.Schedule.Expr, func() {
		s.runJob(snapshot)
	})
	if err != nil {
		log.Printf("[cron] bad expression for job %s (%q): %v", job.Name, job.Schedule.Expr, err)
		return
	}
	s.entries[job.ID] = id
}

func (s *Service) runJob(job CronJob) {
	log.Printf("[cron] firing job %s (%s)", job.Name, job.ID)

	if s.OnJob == nil {
		log.Printf("[cron] job %s skipped: no handler", job.Name)
		return
	}

	result, err := s.OnJob(job)
	s.recordOutcome(job, result, err)
}

// recordOutcome updates the job's state after a run and removes
// one-shot jobs marked DeleteAfterRun.
func (s *Service) recordOutcome(job CronJob, result string, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID != job.ID {
			continue
		}
		s.jobs[i].State.LastRunAtMs = time.Now().UnixMilli()
		if runErr != nil {
			s.jobs[i].State.LastStatus = "error"
			s.jobs[i].State.LastError = runErr.Error()
			log.Printf("[cron] job %s failed: %v", job.Name, runErr)
		} else {
			s.jobs[i].State.LastStatus = "ok"
			s.jobs[i].State.LastError = ""
			log.Printf("[cron] job %s done: %s", job.Name, preview(result))
		}

		if s.jobs[i].DeleteAfterRun {
			s.unregisterLocked(job.ID)
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		}
		break
	}

	if err := s.save(); err != nil {
		log.Printf("[cron] save jobs warning: %v", err)
	}
}

// pollLoop drives "every" and "at" jobs. Due jobs are collected and
// stamped under the lock, then run outside it so a slow handler cannot
// stall the table.
func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, job := range s.collectDue(time.Now().UnixMilli()) {
				s.runJob(job)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) collectDue(nowMs int64) []CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []CronJob
	for i := range s.jobs {
		job := &s.jobs[i]
		if !job.Enabled {
			continue
		}
		switch job.Schedule.Kind {
		case KindEvery:
			if job.Schedule.EveryMs > 0 && nowMs >= job.State.LastRunAtMs+job.Schedule.EveryMs {
				job.State.LastRunAtMs = nowMs // stamp now so the next tick skips it
				due = append(due, *job)
			}
		case KindAt:
			if job.Schedule.AtMs > 0 && nowMs >= job.Schedule.AtMs {
				job.Enabled = false
				due = append(due, *job)
			}
		}
	}
	return due
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		close(done)
	}

	if s.sched != nil {
		stopCtx := s.sched.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[cron] stop timed out waiting for running jobs")
		}
	}
	log.Printf("[cron] stopped")
}

func (s *Service) AddJob(name string, schedule Schedule, payload Payload) (*CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := NewCronJob(name, schedule, payload)
	s.jobs = append(s.jobs, job)

	if job.Schedule.Kind == KindCron && s.sched != nil {
		s.register(&s.jobs[len(s.jobs)-1])
	}

	if err := s.save(); err != nil {
		return nil, fmt.Errorf("save jobs: %w", err)
	}
	return &job, nil
}

func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, job := range s.jobs {
		if job.ID == id {
			s.unregisterLocked(id)
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			if err := s.save(); err != nil {
				log.Printf("[cron] save jobs warning: %v", err)
			}
			return true
		}
	}
	return false
}

func (s *Service) ListJobs() []CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CronJob, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func (s *Service) EnableJob(id string, enabled bool) (*CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		s.jobs[i].Enabled = enabled
		if s.jobs[i].Schedule.Kind == KindCron && s.sched != nil {
			if enabled {
				if _, ok := s.entries[id]; !ok {
					s.register(&s.jobs[i])
				}
			} else {
				s.unregisterLocked(id)
			}
		}
		if err := s.save(); err != nil {
			log.Printf("[cron] save jobs warning: %v", err)
		}
		job := s.jobs[i]
		return &job, nil
	}
	return nil, fmt.Errorf("job %s not found", id)
}

// unregisterLocked drops a job's scheduler entry. Caller holds s.mu.
func (s *Service) unregisterLocked(id string) {
	if entryID, ok := s.entries[id]; ok && s.sched != nil {
		s.sched.Remove(entryID)
		delete(s.entries, id)
	}
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.jobs)
}

func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func preview(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:100] + "..."
}
