package comm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Emitter delivers one track result per frame to the downstream consumer.
type Emitter interface {
	Send(roiID int, x, y float32, timestamp uint64) error
}

// SerialEmitter writes track records to a serial port. A write failure is
// an I/O error the tracking loop treats as fatal.
type SerialEmitter struct {
	port SerialPorter
}

// NewSerialEmitter wraps an open port.
func NewSerialEmitter(port SerialPorter) *SerialEmitter {
	return &SerialEmitter{port: port}
}

// Send writes one record. World coordinates are sent single-precision with
// four decimal places, matching the downstream parser.
func (e *SerialEmitter) Send(roiID int, x, y float32, timestamp uint64) error {
	if _, err := fmt.Fprintf(e.port, "%d,%.4f,%.4f,%d\r\n", roiID, x, y, timestamp); err != nil {
		return errors.Wrap(err, "write track record")
	}
	return nil
}

// Close closes the underlying port.
func (e *SerialEmitter) Close() error {
	return e.port.Close()
}
