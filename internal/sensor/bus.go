package sensor

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// haltDevice is satisfied by *bmxx80.Dev.
type haltDevice interface {
	Device
	Halt() error
	String() string
}

// Bus owns the I2C bus and the BME280 on it for the lifetime of the process.
type Bus struct {
	bus i2c.BusCloser
	dev haltDevice

	closeOnce sync.Once
	closeErr  error
}

// Open initializes the host drivers and the BME280 at addr on the named bus.
// An empty busName selects the default bus, usually /dev/i2c-1.
func Open(busName string, addr uint16) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2c open %q: %w", busName, err)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("bme280 init at %#x: %w", addr, err)
	}

	return &Bus{bus: bus, dev: dev}, nil
}

// Sense implements Device.
func (b *Bus) Sense(e *physic.Env) error {
	return b.dev.Sense(e)
}

// String describes the sensor for logs.
func (b *Bus) String() string {
	return b.dev.String()
}

// Close halts the sensor and releases the bus. Safe to call more than once.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		if err := b.dev.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("bme280 halt: %w", err))
		}
		if err := b.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("i2c close: %w", err))
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}
