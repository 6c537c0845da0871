package comm

import (
	"io"
)

// MockPort implements SerialPorter for testing.
type MockPort struct {
	ReadData    []byte
	WrittenData []byte
	ReadError   error
	WriteError  error
	CloseError  error
	Closed      bool
}

func (m *MockPort) Read(p []byte) (n int, err error) {
	if m.ReadError != nil {
		return 0, m.ReadError
	}
	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}
	n = copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockPort) Write(p []byte) (n int, err error) {
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.WrittenData = append(m.WrittenData, p...)
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.Closed = true
	return m.CloseError
}

// RecordingEmitter captures sent records in memory. Implements Emitter for
// loop-level tests that assert on emitted world coordinates.
type RecordingEmitter struct {
	Records []Record
	Err     error // returned from every Send when set
}

// Record is one captured Send call.
type Record struct {
	RoiID     int
	X         float32
	Y         float32
	Timestamp uint64
}

func (r *RecordingEmitter) Send(roiID int, x, y float32, timestamp uint64) error {
	if r.Err != nil {
		return r.Err
	}
	r.Records = append(r.Records, Record{RoiID: roiID, X: x, Y: y, Timestamp: timestamp})
	return nil
}
