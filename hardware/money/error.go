package money

import "github.com/juju/errors"

var (
	ErrSensor      = errors.New("Defective_Sensor")
	ErrNoStorage   = errors.New("Storage_Unplugged")
	ErrJam         = errors.New("Jam")
	ErrFraud       = errors.New("Possible_Credited_Money_Removal")
	ErrBillReject  = errors.New("Bill_rejected")
	ErrUnitEmpty   = errors.New("Unit_empty")
	ErrUnitInvalid = errors.New("Unit_out_of_range")
	ErrDisabled    = errors.New("Device_disabled")
)
