package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"syscall"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// VEML7700 ambient light sensor on I²C.
const veml7700Addr = 0x10

const (
	regALSConf byte = 0x00
	regALS     byte = 0x04
)

// ALS gain 1/8, integration time 100ms, power on. One count is 0.4608 lx,
// full scale a little over 30k lx, which covers direct daylight on a desk.
const (
	confDefault   uint16  = 0x1000
	lxPerCount    float64 = 0.4608
	integrationMs         = 100
)

// VEML7700 communicates with the sensor over an I²C bus.
type VEML7700 struct {
	d *i2c.Dev
}

// NewVEML7700 configures the sensor and waits out the first integration
// period so the initial read returns real data.
func NewVEML7700(b i2c.Bus) (*VEML7700, error) {
	d := &VEML7700{d: &i2c.Dev{Bus: b, Addr: veml7700Addr}}
	var conf [3]byte
	conf[0] = regALSConf
	binary.LittleEndian.PutUint16(conf[1:], confDefault)
	if err := d.d.Tx(conf[:], nil); err != nil {
		return nil, fmt.Errorf("%w: veml7700 configure: %v", ErrDeviceUnavailable, err)
	}
	time.Sleep((integrationMs + 20) * time.Millisecond)
	return d, nil
}

func (d *VEML7700) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var buf [2]byte
	if err := d.d.Tx([]byte{regALS}, buf[:]); err != nil {
		if errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENXIO) {
			return Sample{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return Sample{}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	raw := binary.LittleEndian.Uint16(buf[:])
	if raw == 0xFFFF {
		// Saturated counter, the value is meaningless.
		return Sample{}, fmt.Errorf("%w: ALS counter saturated", ErrInvalidReading)
	}
	return Sample{Lux: float64(raw) * lxPerCount, At: time.Now()}, nil
}

func (d *VEML7700) Close() error {
	// Shut the ALS down to save power.
	var conf [3]byte
	conf[0] = regALSConf
	binary.LittleEndian.PutUint16(conf[1:], confDefault|0x0001)
	return d.d.Tx(conf[:], nil)
}
