// Package comm delivers per-frame track results over a serial link. The
// wire format is one ASCII record per frame: "roi,x,y,timestamp\r\n".
package comm

import (
	"io"
)

// SerialPorter defines the minimal interface needed for the telemetry
// serial port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
