package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&SimInfo{},
	&Run{},
	&Vehicle{},
	&VehicleState{},
	&TuningWarning{},
	&SimPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// SimInfo identifies the team owning the database
type SimInfo struct {
	gorm.Model
	TeamName        string `json:"teamName" gorm:"size:127"`
	TeamDescription string `json:"teamDescription" gorm:"size:255"`
	TeamWebsite     string `json:"teamURL" gorm:"size:255"`
}

func (*SimInfo) TableName() string {
	return "sim_infos"
}

// SimPerformance samples the writer's backlog once per write cycle
type SimPerformance struct {
	Time                time.Time `json:"time" gorm:"index:idx_simperformance_time"`
	RunID               uint      `json:"runId" gorm:"index:idx_simperformance_run_id"`
	VehicleStateQueue   uint32    `json:"vehicleStateQueue"`
	TuningWarningQueue  uint32    `json:"tuningWarningQueue"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

func (*SimPerformance) TableName() string {
	return "sim_performances"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Run is one headless simulation session
type Run struct {
	gorm.Model
	RunUUID        string     `json:"runId" gorm:"size:36;uniqueIndex:idx_run_uuid"`
	Name           string     `json:"name" gorm:"size:200"`
	Track          string     `json:"track" gorm:"size:127"`
	Tag            string     `json:"tag" gorm:"size:127"`
	StartTime      time.Time  `json:"startTime" gorm:"index:idx_run_start"`
	EndTime        *time.Time `json:"endTime"`
	FixedDeltaTime float64    `json:"fixedDeltaTime"`
	FrameRate      float64    `json:"frameRate"`
	Duration       float64    `json:"duration"`
	Seed           int64      `json:"seed"`
	Origin         geom.Point `json:"origin"` // longitude/latitude of the track origin
	OriginAltitude float64    `json:"originAltitude"`
	SimVersion     string     `json:"simVersion" gorm:"size:32"`
}

func (*Run) TableName() string {
	return "runs"
}

// Vehicle is a controller/body pair registered in a run
// Uses composite primary key (RunID, ObjectID) - ObjectID is the simulator-assigned sequential ID
type Vehicle struct {
	RunID      uint           `json:"runId" gorm:"primaryKey;autoIncrement:false"`
	ObjectID   uint16         `json:"vehicleId" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt  time.Time      `json:"createdAt"`
	JoinTime   time.Time      `json:"joinTime" gorm:"NOT NULL;index:idx_vehicle_join_time"`
	JoinTick   uint           `json:"joinTick"`
	Name       string         `json:"name" gorm:"size:64"`
	Mass       float64        `json:"mass"`
	Spawn      geom.Point     `json:"spawn"` // XYZ in track metres
	HeadingDeg float64        `json:"heading"`
	Tuning     datatypes.JSON `json:"tuning"`
	Enabled    bool           `json:"enabled" gorm:"default:true"`
}

func (*Vehicle) TableName() string {
	return "vehicles"
}

// VehicleState tracks vehicle state at a point in time
// References Vehicle by (RunID, VehicleObjectID)
type VehicleState struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time `json:"time"`
	RunID           uint      `json:"runId" gorm:"index:idx_vehiclestate_run_id"`
	VehicleObjectID uint16    `json:"vehicleId" gorm:"index:idx_vehiclestate_vehicle_id"`
	Tick            uint      `json:"tick" gorm:"index:idx_vehiclestate_tick"`
	SimTime         float64   `json:"simTime"`

	Position      geom.Point `json:"position"` // XYZ in track metres
	VelocityX     float64    `json:"velocityX"`
	VelocityY     float64    `json:"velocityY"`
	VelocityZ     float64    `json:"velocityZ"`
	HeadingDeg    float64    `json:"heading"`
	Speed         float64    `json:"speed"`
	YawRate       float64    `json:"yawRate"`
	SteeringAngle float64    `json:"steeringAngle"`
	Vertical      float64    `json:"vertical"`
	Horizontal    float64    `json:"horizontal"`
	Braking       bool       `json:"braking"`
	Grounded      bool       `json:"grounded"`
	Clamped       bool       `json:"clamped"`
}

func (*VehicleState) TableName() string {
	return "vehicle_states"
}

// TuningWarning is an advisory raised for a vehicle's configuration
type TuningWarning struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time `json:"time"`
	RunID           uint      `json:"runId" gorm:"index:idx_tuningwarning_run_id"`
	VehicleObjectID uint16    `json:"vehicleId"`
	Field           string    `json:"field" gorm:"size:64"`
	Value           float64   `json:"value"`
	Message         string    `json:"message" gorm:"size:255"`
}

func (*TuningWarning) TableName() string {
	return "tuning_warnings"
}

// AssignRun stamps the row with its run's database ID. Rows are queued
// before the run row exists in some backends, so the ID is set at write time.
func (v *Vehicle) AssignRun(id uint) { v.RunID = id }

func (s *VehicleState) AssignRun(id uint) { s.RunID = id }

func (w *TuningWarning) AssignRun(id uint) { w.RunID = id }
