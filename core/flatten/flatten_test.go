package flatten

import (
	"math"
	"testing"

	"pulsegen-core/request"
	"pulsegen-core/schedule"
)

func resolveAndFlatten(t *testing.T, el request.Element, numChannels int) *Program {
	t.Helper()
	a, err := schedule.Resolve(el, schedule.Options{TimeTolerance: 1e-12})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p, err := Flatten(a, numChannels)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	return p
}

func forwardStack(children ...request.Element) *request.Stack {
	return &request.Stack{
		ElementCommon: request.DefaultCommon(),
		Children:      children,
		Direction:     request.Forwards,
	}
}

func play(ch int) *request.Play {
	return &request.Play{
		ElementCommon: request.DefaultCommon(),
		ChannelID:     ch,
		Amplitude:     0.5,
		Width:         10e-9,
	}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestPlayEmitsAbsoluteTime(t *testing.T) {
	p := resolveAndFlatten(t, forwardStack(play(0), play(0)), 1)
	if len(p.Pulses[0]) != 2 {
		t.Fatalf("got %d pulses, want 2", len(p.Pulses[0]))
	}
	approx(t, "first", p.Pulses[0][0].Time, 0)
	approx(t, "second", p.Pulses[0][1].Time*1e9, 10)
}

func TestShiftPhaseAccumulates(t *testing.T) {
	p := resolveAndFlatten(t, forwardStack(
		&request.ShiftPhase{ElementCommon: request.DefaultCommon(), ChannelID: 0, Phase: 0.1},
		&request.ShiftPhase{ElementCommon: request.DefaultCommon(), ChannelID: 0, Phase: 0.25},
		play(0),
	), 1)
	approx(t, "pulse phase", p.Pulses[0][0].Phase, 0.35)
	approx(t, "final phase", p.Final[0].Phase, 0.35)
}

func TestSetPhaseOverwritesAccumulated(t *testing.T) {
	// With an active frequency shift, SetPhase pins the accumulated phase
	// at its own instant, not the raw offset.
	freq := 1e6
	width := 10e-9
	p := resolveAndFlatten(t, forwardStack(
		&request.ShiftFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: freq},
		play(0), // occupies [0, 10ns)
		&request.SetPhase{ElementCommon: request.DefaultCommon(), ChannelID: 0, Phase: 0.5},
	), 1)
	approx(t, "accumulated at set time", p.Final[0].PhaseAt(width), 0.5)
}

func TestShiftFrequencyPhaseContinuity(t *testing.T) {
	// The accumulated phase just before and just after a frequency shift
	// must agree: the shift rewrites the offset so acc(t) is continuous.
	freq := 2e6
	width := 10e-9
	p := resolveAndFlatten(t, forwardStack(
		play(0),
		&request.ShiftFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: freq},
	), 1)
	s := p.Final[0]
	approx(t, "delta freq", s.DeltaFreq, freq)
	approx(t, "continuity", s.PhaseAt(width), 0)
	// A later pulse sees the shifted frequency folded into its constant
	// phase term and local frequency.
	p = resolveAndFlatten(t, forwardStack(
		&request.ShiftFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: freq},
		play(0),
	), 1)
	pulse := p.Pulses[0][0]
	approx(t, "local freq", pulse.LocalFreq, freq)
	approx(t, "constant phase", pulse.Phase, 0)
}

func TestSetFrequencyReplacesShift(t *testing.T) {
	p := resolveAndFlatten(t, forwardStack(
		&request.ShiftFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: 3e6},
		&request.SetFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: 1e6},
	), 1)
	approx(t, "delta freq", p.Final[0].DeltaFreq, 1e6)
}

func TestSwapPhaseInvolution(t *testing.T) {
	swap := func() request.Element {
		return &request.SwapPhase{ElementCommon: request.DefaultCommon(), ChannelID1: 0, ChannelID2: 1}
	}
	prep := []request.Element{
		&request.ShiftPhase{ElementCommon: request.DefaultCommon(), ChannelID: 0, Phase: 0.1},
		&request.ShiftFrequency{ElementCommon: request.DefaultCommon(), ChannelID: 0, Frequency: 1e6},
		&request.ShiftPhase{ElementCommon: request.DefaultCommon(), ChannelID: 1, Phase: 0.3},
		play(0), // advance time so the swap happens at t > 0
	}
	once := resolveAndFlatten(t, forwardStack(append(prep, swap())...), 2)
	twice := resolveAndFlatten(t, forwardStack(append(prep, swap(), swap())...), 2)
	base := resolveAndFlatten(t, forwardStack(prep...), 2)

	// One swap exchanges the accumulated phases at the swap instant.
	swapTime := 10e-9
	approx(t, "swapped ch0", once.Final[0].PhaseAt(swapTime), base.Final[1].PhaseAt(swapTime))
	approx(t, "swapped ch1", once.Final[1].PhaseAt(swapTime), base.Final[0].PhaseAt(swapTime))
	// Two swaps restore both channels exactly.
	for ch := 0; ch < 2; ch++ {
		approx(t, "restored delta freq", twice.Final[ch].DeltaFreq, base.Final[ch].DeltaFreq)
		approx(t, "restored phase", twice.Final[ch].Phase, base.Final[ch].Phase)
	}
}

func TestInvisibleSubtreeEmitsNoPulses(t *testing.T) {
	hidden := forwardStack(
		play(0),
		&request.ShiftPhase{ElementCommon: request.DefaultCommon(), ChannelID: 0, Phase: 0.25},
	)
	hidden.Visible = false
	p := resolveAndFlatten(t, forwardStack(hidden, play(0)), 1)
	if len(p.Pulses[0]) != 1 {
		t.Fatalf("got %d pulses, want 1", len(p.Pulses[0]))
	}
	// The hidden subtree still occupied time and shifted the phase.
	approx(t, "time after hidden subtree", p.Pulses[0][0].Time*1e9, 10)
	approx(t, "phase from hidden shift", p.Pulses[0][0].Phase, 0.25)
}

func TestFlexiblePlayExtendsPlateau(t *testing.T) {
	flexible := play(0)
	flexible.Flexible = true
	flexible.Alignment = request.AlignStretch
	stack := forwardStack(flexible)
	d := 50e-9
	stack.Duration = &d
	p := resolveAndFlatten(t, stack, 1)
	approx(t, "plateau", p.Pulses[0][0].Plateau*1e9, 40)
	approx(t, "width", p.Pulses[0][0].Width*1e9, 10)
}

func TestBarrierKeepsCursorsIntact(t *testing.T) {
	p := resolveAndFlatten(t, forwardStack(
		&request.ShiftPhase{ElementCommon: request.DefaultCommon(), ChannelID: 0, Phase: 0.125},
		play(0),
		play(1),
		&request.Barrier{ElementCommon: request.DefaultCommon()},
		play(0),
	), 2)
	approx(t, "phase unchanged", p.Final[0].Phase, 0.125)
	approx(t, "second pulse synced", p.Pulses[0][1].Time*1e9, 10)
}

func TestChannelOutOfRange(t *testing.T) {
	_, err := func() (*Program, error) {
		a, err := schedule.Resolve(play(5), schedule.Options{TimeTolerance: 1e-12})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		return Flatten(a, 2)
	}()
	if err == nil {
		t.Fatal("expected error for out-of-range channel")
	}
}
