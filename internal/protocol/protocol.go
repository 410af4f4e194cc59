// Package protocol holds the wire vocabulary of the MegaD-2561 HTTP interface
// and the plumbing shared by everything that talks to a controller.
package protocol

// Query keys understood by the controller.
const (
	KeyCommand    = "cmd"
	KeyPort       = "pt"
	KeyConfig     = "cf"
	KeyExt        = "ext"
	KeyMisc       = "misc"
	KeyPID        = "pid"
	KeyPIDEdit    = "pide"
	KeyTime       = "stime"
	KeyTitle      = "emt"
	KeyPIDTitle   = "pidt"
	KeyNoReboot   = "nr"
	KeyDeviceID   = "mdid"
	KeyStatus     = "st"
	KeyProgram    = "prn"
	KeyScenario   = "sc"
	KeyElement    = "el"
	KeyExtPattern = "ext%d"
)

// Commands and sentinel bodies.
const (
	CommandAll  = "all"
	CommandList = "list"
	CommandScan = "scan"
	CommandGet  = "get"

	// Port command values of cmd=<port>:<value>.
	SwitchOff    = "0"
	SwitchOn     = "1"
	SwitchToggle = "2"

	Busy = "busy"
	NA   = "NA"
	On   = "ON"
	Off  = "OFF"

	// Bulk status slots reported by I2C expanders that must be re-read individually.
	SlotMCP = "MCP"
	SlotPCA = "PCA"
)

// Config pages.
const (
	PageMain     = "1"
	PageNetwork  = "2"
	PageServices = "6"
	PageClock    = "7"
	PageCron     = "8"
	PagePrograms = "10"
	PagePID      = "11"
	PagePIDEdit  = "2"
)

// PortOff marks an unassigned PID input or output.
const PortOff = 255
