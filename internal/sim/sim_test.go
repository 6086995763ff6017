package sim

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGeneratorTimestampsAndRate(t *testing.T) {
	g := NewGenerator(Aggressive(), 1000, 1)
	frames := g.Take(3000)
	for i, f := range frames {
		if want := time.Duration(i) * time.Millisecond; f.At != want {
			t.Fatalf("frame %d at %v, want %v", i, f.At, want)
		}
		if f.Steering < -1 || f.Steering > 1 || f.Brake < 0 || f.Brake > 1 {
			t.Fatalf("frame %d out of range: %+v", i, f)
		}
	}
	if frames[0].Frequency != 1000 {
		t.Fatalf("frequency %f", frames[0].Frequency)
	}
}

func TestCornerCuesAndBrakeLag(t *testing.T) {
	tests := []struct {
		profile Profile
		cues    []time.Duration
		onset   time.Duration // first frame with brake applied
	}{
		{Aggressive(), []time.Duration{time.Second}, 1250 * time.Millisecond},
		{Smooth(), []time.Duration{time.Second}, 700 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.profile.Name, func(t *testing.T) {
			frames := NewGenerator(tt.profile, 1000, 1).Take(2500)
			var cues []time.Duration
			onset := time.Duration(-1)
			for _, f := range frames {
				if f.CornerEntry {
					cues = append(cues, f.At)
				}
				if onset < 0 && f.Brake > 0 {
					onset = f.At
				}
			}
			if diff := cmp.Diff(tt.cues, cues); diff != "" {
				t.Fatalf("cue mismatch (-want +got):\n%s", diff)
			}
			if onset != tt.onset {
				t.Fatalf("brake onset at %v, want %v", onset, tt.onset)
			}
		})
	}
}

func TestDeterministicForSeed(t *testing.T) {
	p := Aggressive()
	p.SteerNoise = 0.01
	p.Jitter = 100 * time.Microsecond
	a := NewGenerator(p, 1000, 42).Take(500)
	b := NewGenerator(p, 1000, 42).Take(500)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed diverged:\n%s", diff)
	}
}

func TestIdleHasNoActivity(t *testing.T) {
	for _, f := range NewGenerator(Idle(), 1000, 1).Take(1000) {
		if f.Steering != 0 || f.Brake != 0 || f.CornerEntry {
			t.Fatalf("idle frame moved: %+v", f)
		}
		if f.Pressure[0].Valid || f.Conductance.Valid {
			t.Fatal("idle profile should leave grip and conductance absent")
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"aggressive", "smooth", "idle"} {
		p, err := ByName(name)
		if err != nil || p.Name != name {
			t.Fatalf("ByName(%q) = %+v, %v", name, p, err)
		}
	}
	if _, err := ByName("reckless"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
