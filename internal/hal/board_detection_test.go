package hal

import "testing"

func TestMatchBoardModel(t *testing.T) {
	cases := []struct {
		text string
		want BoardModel
	}{
		{"Model\t\t: Raspberry Pi 5 Model B Rev 1.0", BoardRPi5},
		{"Model\t\t: Raspberry Pi 4 Model B Rev 1.4", BoardRPi4},
		{"Model\t\t: Raspberry Pi 3 Model B+ Rev 1.3", BoardRPi3Plus},
		{"Model\t\t: Raspberry Pi 3 Model B Rev 1.2", BoardRPi3},
		{"Model\t\t: Raspberry Pi Zero 2 W Rev 1.0", BoardRPiZero2W},
		{"Model\t\t: Raspberry Pi Zero W Rev 1.1", BoardRPiZeroW},
		{"Model\t\t: Raspberry Pi Zero Rev 1.3", BoardRPiZero},
		{"Model\t\t: Raspberry Pi Compute Module 4 Rev 1.0", BoardRPiCM4},
		{"Model\t\t: some future toaster", BoardUnknown},
	}
	for _, c := range cases {
		if got := matchBoardModel(c.text); got != c.want {
			t.Errorf("matchBoardModel(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestExtractModelFallsBackThroughLines(t *testing.T) {
	cpuinfo := "processor\t: 0\nModel\t\t: Raspberry Pi 4 Model B Rev 1.4\n"
	if got := extractModel(cpuinfo); got != BoardRPi4 {
		t.Errorf("extractModel() = %v, want BoardRPi4", got)
	}
}

func TestExtractModelUnknownWithNoModelLine(t *testing.T) {
	if got := extractModel("processor\t: 0\n"); got != BoardUnknown {
		t.Errorf("extractModel() = %v, want BoardUnknown", got)
	}
}

func TestBoardModelStringRoundTrip(t *testing.T) {
	if BoardRPi5.String() != "Raspberry Pi 5" {
		t.Errorf("BoardRPi5.String() = %q", BoardRPi5.String())
	}
	if BoardUnknown.String() != "Unknown" {
		t.Errorf("BoardUnknown.String() = %q", BoardUnknown.String())
	}
}

func TestGPIOChipNameFallsBackWhenNoSysfsEntry(t *testing.T) {
	// /sys/bus/gpio/devices/gpiochip*/label won't exist on the test runner,
	// so detection must fall back to gpiochip0 rather than error.
	if got := BoardRPi4.GPIOChipName(); got != "gpiochip0" {
		t.Errorf("GPIOChipName() = %q, want gpiochip0 fallback", got)
	}
}
