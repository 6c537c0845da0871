package comm

import (
	"go.bug.st/serial"

	"github.com/pkg/errors"
)

// OpenPort opens the telemetry serial port at the given path, 115200 8N1.
func OpenPort(path string) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open comm port %s", path)
	}
	return port, nil
}
