package types

import "fmt"

type DeviceOfflineError struct {
	Device string
}

func (oe DeviceOfflineError) Error() string {
	return fmt.Sprintf("%s is offline", oe.Device)
}
