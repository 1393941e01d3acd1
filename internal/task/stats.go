package task

// TaskStats 聚合了任务状态的统计信息，常用于仪表盘或健康检查。
type TaskStats struct {
	Total           int   `json:"total"`
	Submitted       int   `json:"submitted"`
	Working         int   `json:"working"`
	Completed       int   `json:"completed"`
	Failed          int   `json:"failed"`
	Canceled        int   `json:"canceled"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// add 将单个任务计入统计。
func (s *TaskStats) add(t *Task) {
	s.Total++
	switch t.Status.State {
	case StateSubmitted:
		s.Submitted++
	case StateWorking, StateInputRequired:
		s.Working++
	case StateCompleted:
		s.Completed++
	case StateFailed:
		s.Failed++
	case StateCanceled:
		s.Canceled++
	}
	updated := t.UpdatedAt.Unix()
	if s.OldestUpdatedAt == 0 || updated < s.OldestUpdatedAt {
		s.OldestUpdatedAt = updated
	}
	if updated > s.NewestUpdatedAt {
		s.NewestUpdatedAt = updated
	}
}
