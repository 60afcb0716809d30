package model

import "time"

type ScreenTimeSession struct {
	ID           int64      `json:"screentime_id"`
	ChildID      int64      `json:"child_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	TotalMinutes *int       `json:"total_minutes"`
	AlertFlag    bool       `json:"alert_flag"`
}

func (s *ScreenTimeSession) Active() bool {
	return s.EndTime == nil
}
