package hardware

import (
	"sync"

	"github.com/AlexTransit/kiosk/hardware/device"
	"github.com/AlexTransit/kiosk/helpers"
)

// Enum starts all devices concurrently, then reports required devices that are not ready.
func (ds *Devices) Enum(service *device.Service) error {
	errch := make(chan error, len(ds.all)+1)
	wg := sync.WaitGroup{}
	wg.Add(len(ds.all))
	for _, d := range ds.all {
		d := d
		go helpers.WrapErrChan(&wg, errch, func() error {
			d.Run()
			return nil
		})
	}
	wg.Wait()
	errch <- service.CheckRequired()
	close(errch)
	return helpers.FoldErrChan(errch)
}

func (ds *Devices) Stop() {
	wg := sync.WaitGroup{}
	wg.Add(len(ds.all))
	for _, d := range ds.all {
		d := d
		go func() {
			defer wg.Done()
			d.Stop()
		}()
	}
	wg.Wait()
}

func (ds *Devices) Len() int { return len(ds.all) }
