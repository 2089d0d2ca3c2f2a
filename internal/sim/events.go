package sim

// Commands dispatched during a run. Payloads are pointers to pkg/core records.
const (
	CmdRunStart       = "run:start"       // *core.Run
	CmdRunEnd         = "run:end"         // *core.Run
	CmdVehicleAdd     = "vehicle:add"     // *core.Vehicle
	CmdVehicleWarning = "vehicle:warning" // *core.TuningWarning
	CmdVehicleState   = "vehicle:state"   // *core.VehicleState
)
