package lsm6dsox

import (
	"fmt"
	"time"

	"skypointer/internal/i2c"
)

var sleep = time.Sleep

// Minimal LSM6DSOX driver.
//
// Focus: probe + accel/gyro burst reads for the pointing loop.
// WHO_AM_I at 0x0F should return 0x6C.

const (
	addrDefault = 0x6A

	regWhoAmI = 0x0F
	whoAmIVal = 0x6C

	regCtrl1XL = 0x10
	regCtrl2G  = 0x11
	regCtrl3C  = 0x12
	regStatus  = 0x1E
	regOutXLG  = 0x22 // contiguous gyro+accel output block

	bitSWReset = 0x01
	bitIFInc   = 0x04
	bitBDU     = 0x40

	bitXLDA = 0x01
	bitGDA  = 0x02

	// 104 Hz ODR; accel full-scale 4g, gyro full-scale 250 dps.
	cfgAccel104Hz4g   = 0x48
	cfgGyro104Hz250dp = 0x40
)

type Sample struct {
	Time time.Time
	// Accel in G.
	Ax, Ay, Az float64
	// Gyro in deg/s.
	Gx, Gy, Gz float64
}

type Device struct {
	dev regIO

	// scales based on configured full-scale.
	scaleAccel float64
	scaleGyro  float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("lsm6dsox: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("lsm6dsox: dev is nil")
	}
	d := &Device{dev: dev}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("lsm6dsox: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("lsm6dsox: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	// Software reset; the part needs a short settle before reconfig.
	if err := d.dev.WriteReg(regCtrl3C, bitSWReset); err != nil {
		return fmt.Errorf("lsm6dsox: reset failed: %w", err)
	}
	sleep(20 * time.Millisecond)

	// Block data update + register auto-increment for burst reads.
	if err := d.dev.WriteReg(regCtrl3C, bitBDU|bitIFInc); err != nil {
		return fmt.Errorf("lsm6dsox: ctrl3 config failed: %w", err)
	}

	if err := d.dev.WriteReg(regCtrl1XL, cfgAccel104Hz4g); err != nil {
		return fmt.Errorf("lsm6dsox: accel config failed: %w", err)
	}
	if err := d.dev.WriteReg(regCtrl2G, cfgGyro104Hz250dp); err != nil {
		return fmt.Errorf("lsm6dsox: gyro config failed: %w", err)
	}

	d.scaleAccel = 4.0 / 32768.0
	d.scaleGyro = 250.0 / 32768.0
	return nil
}

// Ready reports whether both accel and gyro have fresh output data.
func (d *Device) Ready() (bool, error) {
	if d == nil {
		return false, fmt.Errorf("lsm6dsox: device is nil")
	}
	st, err := d.dev.ReadRegU8(regStatus)
	if err != nil {
		return false, fmt.Errorf("lsm6dsox: status read failed: %w", err)
	}
	return st&(bitXLDA|bitGDA) == bitXLDA|bitGDA, nil
}

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("lsm6dsox: device is nil")
	}

	// Gyro X..Z then accel X..Z, low byte first.
	buf := make([]byte, 12)
	if err := d.dev.ReadReg(regOutXLG, buf); err != nil {
		return Sample{}, fmt.Errorf("lsm6dsox: read sensors failed: %w", err)
	}

	gx := int16(buf[1])<<8 | int16(buf[0])
	gy := int16(buf[3])<<8 | int16(buf[2])
	gz := int16(buf[5])<<8 | int16(buf[4])
	ax := int16(buf[7])<<8 | int16(buf[6])
	ay := int16(buf[9])<<8 | int16(buf[8])
	az := int16(buf[11])<<8 | int16(buf[10])

	return Sample{
		Time: time.Now(),
		Ax:   float64(ax) * d.scaleAccel,
		Ay:   float64(ay) * d.scaleAccel,
		Az:   float64(az) * d.scaleAccel,
		Gx:   float64(gx) * d.scaleGyro,
		Gy:   float64(gy) * d.scaleGyro,
		Gz:   float64(gz) * d.scaleGyro,
	}, nil
}
