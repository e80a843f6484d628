package convert

import (
	"context"
	"fmt"
	"sort"

	"github.com/faize-ai/diskconv/internal/domxml"
)

// Session is the state of one conversion run. It owns the domain document;
// the disks and tasks reference nodes inside it.
type Session struct {
	Domain          string
	TargetFormat    string
	AppendExtension bool

	Document *domxml.Document
	Disks    []DiskDescriptor
	Tasks    []*Task
}

// Pipeline wires the four stages together.
type Pipeline struct {
	Inspector *Inspector
	Planner   *Planner
	Executor  *Executor
	Committer *Committer
}

// Prepare inspects the domain and plans its conversion. Nothing is written.
func (p *Pipeline) Prepare(domain, targetFormat string, appendExtension bool) (*Session, error) {
	doc, disks, err := p.Inspector.Inspect(domain)
	if err != nil {
		return nil, err
	}
	tasks, err := p.Planner.Plan(disks, targetFormat, appendExtension)
	if err != nil {
		return nil, err
	}
	return &Session{
		Domain:          domain,
		TargetFormat:    targetFormat,
		AppendExtension: appendExtension,
		Document:        doc,
		Disks:           disks,
		Tasks:           tasks,
	}, nil
}

// Execute runs the session's tasks, or only those at the given plan indices
// when selected is non-empty. Selected tasks still run in plan order.
func (p *Pipeline) Execute(ctx context.Context, s *Session, opts ExecuteOptions, selected []int) error {
	tasks, err := s.Select(selected)
	if err != nil {
		return err
	}
	return p.Executor.ExecuteAll(ctx, tasks, opts)
}

// Commit persists the session's document.
func (p *Pipeline) Commit(s *Session, removeOldFiles bool) (*CommitResult, error) {
	return p.Committer.Commit(s.Document, s.Tasks, removeOldFiles)
}

// Select returns the tasks at the given plan indices in plan order, or every
// task when indices is empty. Duplicates are ignored.
func (s *Session) Select(indices []int) ([]*Task, error) {
	if len(indices) == 0 {
		return s.Tasks, nil
	}

	seen := make(map[int]bool, len(indices))
	ordered := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.Tasks) {
			return nil, fmt.Errorf("%w: invalid task id %d (plan has %d tasks)", ErrValidation, idx, len(s.Tasks))
		}
		if !seen[idx] {
			seen[idx] = true
			ordered = append(ordered, idx)
		}
	}
	sort.Ints(ordered)

	tasks := make([]*Task, 0, len(ordered))
	for _, idx := range ordered {
		tasks = append(tasks, s.Tasks[idx])
	}
	return tasks, nil
}

// Completed returns the number of completed tasks.
func (s *Session) Completed() int {
	return len(CompletedTasks(s.Tasks))
}
