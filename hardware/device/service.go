package device

import (
	"sort"
	"sync"

	"github.com/AlexTransit/kiosk/helpers"
	"github.com/AlexTransit/kiosk/internal/types"
	"github.com/AlexTransit/kiosk/log2"
	"github.com/juju/errors"
)

type devWrap struct {
	config Config
	dev    Device
	refs   int
}

// Service holds registered devices by configuration name.
// Acquire/Release count references, device is never closed by Release.
type Service struct {
	Log *log2.Log

	lk      sync.RWMutex
	devices map[string]*devWrap
	updated Signal[string]
}

func NewService(log *log2.Log) *Service {
	return &Service{Log: log, devices: make(map[string]*devWrap)}
}

// Drivers call Register to declare device support.
// Disabled devices are skipped silently.
func (s *Service) Register(config Config, dev Device) error {
	if config.Disabled {
		s.Log.Debugf("device=%s disabled in config", config.Name)
		return nil
	}
	if config.Name == "" {
		return errors.NotValidf("device name empty")
	}
	if dev == nil {
		return errors.Errorf("code error device=%s is nil", config.Name)
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.devices[config.Name]; ok {
		return errors.AlreadyExistsf("device=%s", config.Name)
	}
	s.devices[config.Name] = &devWrap{config: config, dev: dev}
	s.Log.Debugf("RegisterDevice name=%s kind=%s", config.Name, config.Kind)
	return nil
}

func (s *Service) Acquire(name string) (Device, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.devices[name]
	if !ok {
		return nil, errors.NotFoundf("device=%s", name)
	}
	d.refs++
	return d.dev, nil
}

func (s *Service) Release(dev Device) {
	if dev == nil {
		return
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	if d, ok := s.devices[dev.Name()]; ok && d.refs > 0 {
		d.refs--
	}
}

func (s *Service) Refs(name string) int {
	s.lk.RLock()
	defer s.lk.RUnlock()
	if d, ok := s.devices[name]; ok {
		return d.refs
	}
	return 0
}

// ConfigName returns registry name of device, empty for unknown.
func (s *Service) ConfigName(dev Device) string {
	s.lk.RLock()
	defer s.lk.RUnlock()
	for name, d := range s.devices {
		if d.dev == dev {
			return name
		}
	}
	return ""
}

func (s *Service) Config(name string) (Config, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	d, ok := s.devices[name]
	if !ok {
		return Config{}, errors.NotFoundf("device=%s", name)
	}
	return d.config, nil
}

// Names of devices of kind, sorted. Empty kind matches all.
func (s *Service) Names(kinds ...Kind) []string {
	s.lk.RLock()
	defer s.lk.RUnlock()
	names := make([]string, 0, len(s.devices))
	for name, d := range s.devices {
		if len(kinds) == 0 || hasKind(kinds, d.config.Kind) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// CheckRequired returns error for every required device that is not ready.
func (s *Service) CheckRequired() error {
	s.lk.RLock()
	defer s.lk.RUnlock()
	errs := make([]error, 0, len(s.devices))
	for name, d := range s.devices {
		if d.config.Required && !d.dev.Ready() {
			errs = append(errs, types.DeviceOfflineError{Device: name})
		}
	}
	return helpers.FoldErrors(errs)
}

func (s *Service) OnConfigurationUpdated(f func(name string)) Subscription {
	return s.updated.Subscribe(f)
}

// ConfigurationUpdated is called by drivers after device changed its static configuration,
// for example reported new unit count.
func (s *Service) ConfigurationUpdated(name string) {
	s.updated.Emit(name)
}
