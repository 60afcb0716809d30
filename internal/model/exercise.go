package model

import "time"

// DateLayout is the storage format of calendar dates.
const DateLayout = "2006-01-02"

type Exercise struct {
	ID          int64  `json:"exercise_id"`
	Type        string `json:"exercise_type"`
	Name        string `json:"exercise_name"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

type ExerciseLog struct {
	ID           int64     `json:"log_id"`
	ChildID      int64     `json:"child_id"`
	ExerciseID   int64     `json:"exercise_id"`
	ExerciseDate string    `json:"exercise_date"`
	CreatedAt    time.Time `json:"created_at"`
}
