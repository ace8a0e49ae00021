package helpers

import (
	"errors"
	"sync"
)

// FoldErrors joins non-nil errors, nil when there are none.
func FoldErrors(errs []error) error {
	var err error
	for _, e := range errs {
		if e != nil {
			err = errors.Join(err, e)
		}
	}
	return err
}

func FoldErrChan(ch <-chan error) error {
	errs := make([]error, 0, cap(ch))
	for e := range ch {
		if e != nil {
			errs = append(errs, e)
		}
	}
	return FoldErrors(errs)
}

func WrapErrChan(wg *sync.WaitGroup, ch chan<- error, fun func() error) {
	defer wg.Done()
	if err := fun(); err != nil {
		ch <- err
	}
}
