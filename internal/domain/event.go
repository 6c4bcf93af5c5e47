package domain

import "time"

// JobState 是作业状态机：idle → running ⇄ paused → {stopped, completed}。
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobPaused    JobState = "paused"
	JobStopped   JobState = "stopped"
	JobCompleted JobState = "completed"
)

// Terminal 表示不可再恢复的终态。
func (s JobState) Terminal() bool { return s == JobStopped || s == JobCompleted }

// Active 表示作业仍占用“单作业”槽位。
func (s JobState) Active() bool { return s == JobRunning || s == JobPaused }

// ProgressEvent 每完成一个 WorkItem 发出一次。
type ProgressEvent struct {
	Percentage int    `json:"percentage"`
	Step       string `json:"step"`
	Done       int    `json:"done"`
	Total      int    `json:"total"`
}

// ResultRecord 是单个 WorkItem 的结果；追加到有序日志后不再重排或删除。
type ResultRecord struct {
	Ordinal   int        `json:"ordinal"`
	Success   bool       `json:"success"`
	Status    ItemStatus `json:"status"`
	Code      string     `json:"code,omitempty"`
	Message   string     `json:"message"`
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Timestamp time.Time  `json:"timestamp"`
}

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
	EventState    EventKind = "state"
)

// Event 是出站事件流中的一条；Seq 从 1 开始按发出顺序递增。
type Event struct {
	Seq      uint64         `json:"seq"`
	JobID    string         `json:"job_id"`
	Kind     EventKind      `json:"kind"`
	Progress *ProgressEvent `json:"progress,omitempty"`
	Result   *ResultRecord  `json:"result,omitempty"`
	State    JobState       `json:"state,omitempty"`
}
