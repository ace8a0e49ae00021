package money

import "fmt"

// Status is the device status vocabulary understood by the funds core.
// Drivers report raw codes, Translate is the only place they are interpreted.
type Status byte

const (
	StatusUnknown Status = iota
	StatusOK
	StatusBusy
	StatusEnabled
	StatusDisabled
	StatusRejected
	StatusCheated
	StatusUnitEmpty
	StatusError
)

var statusNames = [...]string{
	StatusUnknown:   "Unknown",
	StatusOK:        "OK",
	StatusBusy:      "Busy",
	StatusEnabled:   "Enabled",
	StatusDisabled:  "Disabled",
	StatusRejected:  "Rejected",
	StatusCheated:   "Cheated",
	StatusUnitEmpty: "UnitEmpty",
	StatusError:     "Error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", byte(s))
}

type WarningLevel byte

const (
	LevelOK WarningLevel = iota
	LevelWarning
	LevelError
)

func (l WarningLevel) String() string {
	switch l {
	case LevelOK:
		return "OK"
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	}
	return fmt.Sprintf("WarningLevel(%d)", byte(l))
}

// Level of status, used by managers to tell faults from activity.
func (s Status) Level() WarningLevel {
	switch s {
	case StatusError:
		return LevelError
	case StatusRejected, StatusCheated, StatusUnitEmpty, StatusUnknown:
		return LevelWarning
	}
	return LevelOK
}

// Raw driver status codes.
// 0x0x normal operation, 0x1x warnings, 0x2x and above faults.
const (
	RawOK        = 0x00
	RawBusy      = 0x01
	RawEnabled   = 0x02
	RawDisabled  = 0x03
	RawRejected  = 0x10
	RawCheated   = 0x11
	RawUnitEmpty = 0x12
	RawJam       = 0x20
	RawNoStorage = 0x21
	RawSensor    = 0x22
	RawFailure   = 0x2f
)

// Translate converts raw driver status code into Status.
// Unknown codes inside the fault range are errors, others are unknown warnings.
func Translate(raw int) Status {
	switch raw {
	case RawOK:
		return StatusOK
	case RawBusy:
		return StatusBusy
	case RawEnabled:
		return StatusEnabled
	case RawDisabled:
		return StatusDisabled
	case RawRejected:
		return StatusRejected
	case RawCheated:
		return StatusCheated
	case RawUnitEmpty:
		return StatusUnitEmpty
	case RawJam, RawNoStorage, RawSensor, RawFailure:
		return StatusError
	}
	if raw >= RawJam {
		return StatusError
	}
	return StatusUnknown
}

// RawError returns the error matching raw fault code, nil for non-fault codes.
func RawError(raw int) error {
	switch raw {
	case RawJam:
		return ErrJam
	case RawNoStorage:
		return ErrNoStorage
	case RawSensor:
		return ErrSensor
	case RawCheated:
		return ErrFraud
	case RawRejected:
		return ErrBillReject
	case RawUnitEmpty:
		return ErrUnitEmpty
	}
	if raw >= RawJam {
		return fmt.Errorf("device_failure code=%02x", raw)
	}
	return nil
}

// StatusEvent is what devices report through status subscriptions.
type StatusEvent struct {
	Status Status
	Raw    int
	// human readable, already translated by driver
	Text string
}

func NewStatusEvent(raw int) StatusEvent {
	e := StatusEvent{Raw: raw, Status: Translate(raw)}
	if err := RawError(raw); err != nil {
		e.Text = err.Error()
	} else {
		e.Text = e.Status.String()
	}
	return e
}

func (e StatusEvent) Level() WarningLevel { return e.Status.Level() }

func (e StatusEvent) String() string {
	return fmt.Sprintf("status=%s level=%s raw=%02x text=%s", e.Status, e.Level(), e.Raw, e.Text)
}
