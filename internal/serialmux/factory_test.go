package serialmux

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial"
)

func TestOpenPort(t *testing.T) {
	port := NewTestableSerialPort()
	var gotPath string
	var gotMode *serial.Mode

	orig := openSerialPort
	defer func() { openSerialPort = orig }()
	openSerialPort = func(path string, mode *serial.Mode) (TimeoutSerialPorter, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	reader, err := OpenPort("/dev/ttyUSB0", PortOptions{BaudRate: 9600})
	if err != nil {
		t.Fatalf("OpenPort() error = %v", err)
	}
	if gotPath != "/dev/ttyUSB0" {
		t.Errorf("opened %q, want /dev/ttyUSB0", gotPath)
	}
	if gotMode.BaudRate != 9600 {
		t.Errorf("baud rate = %d, want 9600", gotMode.BaudRate)
	}
	if reader.Name() != "/dev/ttyUSB0" || !reader.IsOpen() {
		t.Errorf("reader name=%q open=%v", reader.Name(), reader.IsOpen())
	}

	if err := reader.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !port.IsClosed() {
		t.Error("closing the reader did not close the port")
	}
}

func TestOpenPort_Errors(t *testing.T) {
	orig := openSerialPort
	defer func() { openSerialPort = orig }()

	errBusy := errors.New("device busy")
	opened := false
	openSerialPort = func(string, *serial.Mode) (TimeoutSerialPorter, error) {
		opened = true
		return nil, errBusy
	}

	if _, err := OpenPort("COM3", PortOptions{}); !errors.Is(err, errBusy) {
		t.Errorf("OpenPort() error = %v, want wrapped %v", err, errBusy)
	}

	opened = false
	if _, err := OpenPort("COM3", PortOptions{BaudRate: 7}); err == nil {
		t.Error("OpenPort() accepted an invalid baud rate")
	}
	if opened {
		t.Error("OpenPort() opened the port despite invalid options")
	}
}

func TestListPorts(t *testing.T) {
	tests := []struct {
		name  string
		ports []string
		err   error
		goos  string
		want  []string
	}{
		{
			name:  "sorted and deduplicated",
			ports: []string{"/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyUSB1"},
			goos:  "linux",
			want:  []string{"/dev/ttyACM0", "/dev/ttyUSB1"},
		},
		{
			name: "empty on linux",
			goos: "linux",
			want: nil,
		},
		{
			name: "enumeration failure on windows",
			err:  errors.New("registry unavailable"),
			goos: "windows",
			want: []string{"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9", "COM10"},
		},
		{
			name:  "windows with ports",
			ports: []string{"COM4", "COM3"},
			goos:  "windows",
			want:  []string{"COM3", "COM4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := listPorts(func() ([]string, error) { return tt.ports, tt.err }, tt.goos)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("listPorts() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
