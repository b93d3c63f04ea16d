// Package logaccess indexes per-container log files and enforces
// owner-only read policy (spec.md §4.7), grounded on the original
// source's log_index / log_policy / log_reader trio
// (tests/test_log_endpoints.py).
package logaccess

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Entry is one append-only log-index row (spec.md §3).
type Entry struct {
	ContainerID string    `json:"container_id"`
	TaskID      string    `json:"task_id"`
	ThreadTS    string    `json:"thread_ts,omitempty"`
	LogFile     string    `json:"log_file"`
	Timestamp   time.Time `json:"timestamp"`
}

type indexFile struct {
	TaskToContainer map[string]string `json:"task_to_container"`
	ThreadToTask    map[string]string `json:"thread_to_task"`
	Entries         []Entry           `json:"entries"`
}

// Index maps task-id -> container-id, thread-id -> task-id, and holds
// the append-only entry list, the same three structures
// log_index.LogIndex keeps.
type Index struct {
	mu    sync.RWMutex
	path  string
	file  indexFile
}

func LoadIndex(path string) (*Index, error) {
	idx := &Index{
		path: path,
		file: indexFile{
			TaskToContainer: map[string]string{},
			ThreadToTask:    map[string]string{},
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &idx.file); err != nil {
		return nil, err
	}
	if idx.file.TaskToContainer == nil {
		idx.file.TaskToContainer = map[string]string{}
	}
	if idx.file.ThreadToTask == nil {
		idx.file.ThreadToTask = map[string]string{}
	}
	return idx, nil
}

func (i *Index) ContainerForTask(taskID string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	c, ok := i.file.TaskToContainer[taskID]
	return c, ok
}

func (i *Index) TaskForThread(threadTS string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	t, ok := i.file.ThreadToTask[threadTS]
	return t, ok
}

func (i *Index) EntriesForContainer(containerID string) []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []Entry
	for _, e := range i.file.Entries {
		if e.ContainerID == containerID {
			out = append(out, e)
		}
	}
	return out
}

func (i *Index) AllEntries() []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Entry, len(i.file.Entries))
	copy(out, i.file.Entries)
	return out
}

// Append adds a new entry and persists the index. Persistence failures
// are returned to the caller. Unlike the session table, this file is
// written far less often (one append per log file created) and is
// rewritten in place with os.WriteFile, without temp-file-and-rename: an
// interrupted write can leave a file that LoadIndex rejects as invalid
// JSON.
func (i *Index) Append(e Entry) error {
	i.mu.Lock()
	i.file.TaskToContainer[e.TaskID] = e.ContainerID
	if e.ThreadTS != "" {
		i.file.ThreadToTask[e.ThreadTS] = e.TaskID
	}
	i.file.Entries = append(i.file.Entries, e)
	data, err := json.MarshalIndent(i.file, "", "  ")
	path := i.path
	i.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
