package serialmux

import (
	"fmt"
	"runtime"
	"slices"

	"go.bug.st/serial"

	"github.com/banshee-data/heading.report/internal/monitoring"
)

// OpenPort opens the serial port at path and wraps it in a LineReader. The
// caller owns the returned reader and must Close it.
func OpenPort(path string, opts PortOptions) (*LineReader, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := openSerialPort(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return NewLineReader(path, port), nil
}

// ListPorts returns the serial ports present on this machine, sorted and
// without duplicates. On Windows, where enumeration is unreliable, COM1
// through COM10 are offered when nothing is found.
func ListPorts() []string {
	return listPorts(serial.GetPortsList, runtime.GOOS)
}

func listPorts(enumerate func() ([]string, error), goos string) []string {
	ports, err := enumerate()
	if err != nil {
		monitoring.Logf("[serialmux] listing serial ports: %v", err)
	}

	slices.Sort(ports)
	ports = slices.Compact(ports)

	if len(ports) == 0 && goos == "windows" {
		ports = make([]string, 0, 10)
		for i := 1; i <= 10; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
	}
	return ports
}
