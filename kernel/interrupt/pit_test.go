package interrupt

import "testing"

func TestInitTimerProgramsDivisorForConfiguredHz(t *testing.T) {
	writes := withFakePorts(t)
	defer func() { tickHandler = nil }()

	InitTimer(250)

	// 1193182 / 250 = 4772 (integer division), low byte 0xA4, high byte 0x12.
	want := []portWrite{
		{pitCommand, pitCommandSetup},
		{pitChannel0, 0xA4},
		{pitChannel0, 0x12},
	}
	if len(*writes) != len(want) {
		t.Fatalf("wrote %d ports, want %d: %v", len(*writes), len(want), *writes)
	}
	for i, w := range want {
		if (*writes)[i] != w {
			t.Fatalf("write %d = %+v, want %+v", i, (*writes)[i], w)
		}
	}
}

func TestTickHandlerFiresOnEachTimerIRQ(t *testing.T) {
	withFakePorts(t)
	defer func() { tickHandler = nil }()

	ticks = 0
	InitTimer(250)

	fired := 0
	OnTick(func(*Frame, *Regs) { fired++ })

	h := irqHandlers[timerIRQ]
	h(&Frame{}, &Regs{})
	h(&Frame{}, &Regs{})
	h(&Frame{}, &Regs{})

	if fired != 3 {
		t.Fatalf("tick handler fired %d times, want 3", fired)
	}
	if Ticks() != 3 {
		t.Fatalf("Ticks() = %d, want 3", Ticks())
	}
}

func TestSecondsConvertsTicksAtConfiguredRate(t *testing.T) {
	if got := Seconds(2500); got != 10 {
		t.Fatalf("Seconds(2500) = %d, want 10", got)
	}
}
