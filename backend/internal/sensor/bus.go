package sensor

import (
	"fmt"

	"arksync/backend/pkg/serialport"
)

// Bus is how a sensor is attached to the host. It is one of UART or I2C.
type Bus interface {
	fmt.Stringer
	isBus()
}

// UART is a sensor behind a USB serial bridge.
type UART struct {
	Port serialport.Port
}

// I2C is declared for completeness, the fleet only manages UART sensors.
type I2C struct {
	Address uint16
}

func (UART) isBus() {}

func (I2C) isBus() {}

func (u UART) String() string {
	return "uart:" + u.Port.Name
}

func (i I2C) String() string {
	return fmt.Sprintf("i2c:0x%02x", i.Address)
}
