package core

import "time"

// Run is one headless simulation session.
type Run struct {
	ID             uint      `json:"id"`
	RunID          string    `json:"runId"` // uuid
	Name           string    `json:"name"`
	Track          string    `json:"track"`
	Tag            string    `json:"tag"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	FixedDeltaTime float64   `json:"fixedDeltaTime"`
	FrameRate      float64   `json:"frameRate"`
	Duration       float64   `json:"duration"`
	Seed           int64     `json:"seed"`
	Origin         GeoOrigin `json:"origin"`
	SimVersion     string    `json:"simVersion"`
}
