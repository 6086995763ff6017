package egress

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region control
// AxisControl is the egress view of one axis.
type AxisControl struct {
	Output    float64 // shaped by the phenotype sensitivity
	Predicted float64 // shaped next-step forecast
	Rate      float64
	Promoted  bool
}

// Control is one frame of processed input as delivered to consumers. It
// holds no pointers into the session.
type Control struct {
	Seq        uint64
	At         time.Duration
	Axes       [input.NumAxes]AxisControl
	Confidence float64
	Coherence  float64
	Feedback   float64
	Epoch      uint64
	VersionID  string
}

// ControlOf flattens a session output.
func ControlOf(seq uint64, o engine.Output) Control {
	c := Control{Seq: seq, At: o.Frame.At, Feedback: o.Feedback}
	next := o.Forecast.Next()
	c.Confidence = next.Confidence
	c.Coherence = next.Coherence
	for _, a := range input.Axes() {
		ac := AxisControl{
			Predicted: next.Output[a],
			Rate:      o.Axes[a].Rate,
			Promoted:  o.Axes[a].Promoted(),
		}
		if v, ok := o.Frame.Axis(a); ok {
			ac.Output = v
			if o.Phenotype != nil {
				ac.Output = o.Phenotype.Shape(a, v)
			}
		}
		c.Axes[a] = ac
	}
	if o.Phenotype != nil {
		c.Epoch = o.Phenotype.Epoch
		c.VersionID = o.Phenotype.VersionID
	}
	return c
}

// #endregion control

// #region wire
// Struct encodes c for the wire.
func (c Control) Struct() (*structpb.Struct, error) {
	axes := make(map[string]any, input.NumAxes)
	for _, a := range input.Axes() {
		ac := c.Axes[a]
		axes[a.String()] = map[string]any{
			"output":    ac.Output,
			"predicted": ac.Predicted,
			"rate":      ac.Rate,
			"promoted":  ac.Promoted,
		}
	}
	return structpb.NewStruct(map[string]any{
		"seq":        float64(c.Seq),
		"at_us":      float64(c.At / time.Microsecond),
		"axes":       axes,
		"confidence": c.Confidence,
		"coherence":  c.Coherence,
		"feedback":   c.Feedback,
		"epoch":      float64(c.Epoch),
		"version_id": c.VersionID,
	})
}

// ControlFromStruct decodes a wire control message.
func ControlFromStruct(s *structpb.Struct) (Control, error) {
	f := s.GetFields()
	axes := f["axes"].GetStructValue()
	if axes == nil {
		return Control{}, fmt.Errorf("control %v: missing axes", f["seq"].GetNumberValue())
	}
	c := Control{
		Seq:        uint64(f["seq"].GetNumberValue()),
		At:         time.Duration(f["at_us"].GetNumberValue()) * time.Microsecond,
		Confidence: f["confidence"].GetNumberValue(),
		Coherence:  f["coherence"].GetNumberValue(),
		Feedback:   f["feedback"].GetNumberValue(),
		Epoch:      uint64(f["epoch"].GetNumberValue()),
		VersionID:  f["version_id"].GetStringValue(),
	}
	for _, a := range input.Axes() {
		af := axes.GetFields()[a.String()].GetStructValue().GetFields()
		c.Axes[a] = AxisControl{
			Output:    af["output"].GetNumberValue(),
			Predicted: af["predicted"].GetNumberValue(),
			Rate:      af["rate"].GetNumberValue(),
			Promoted:  af["promoted"].GetBoolValue(),
		}
	}
	return c, nil
}

// PhenotypeStruct encodes the fields, traits and lineage of p.
func PhenotypeStruct(p phenotype.Phenotype) (*structpb.Struct, error) {
	fields := make(map[string]any, phenotype.NumFields)
	for f := phenotype.Field(0); f < phenotype.NumFields; f++ {
		fields[f.String()] = p.Get(f)
	}
	traits := make(map[string]any, phenotype.NumTraits)
	for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
		traits[k.String()] = float64(p.Traits[k])
	}
	return structpb.NewStruct(map[string]any{
		"version_id": p.VersionID,
		"parent_id":  p.ParentID,
		"epoch":      float64(p.Epoch),
		"fields":     fields,
		"traits":     traits,
	})
}

// PhenotypeFromStruct decodes a wire phenotype. The commit timestamp is
// not carried.
func PhenotypeFromStruct(s *structpb.Struct) (phenotype.Phenotype, error) {
	f := s.GetFields()
	p := phenotype.Default()
	p.VersionID = f["version_id"].GetStringValue()
	p.ParentID = f["parent_id"].GetStringValue()
	p.Epoch = uint64(f["epoch"].GetNumberValue())
	for name, v := range f["fields"].GetStructValue().GetFields() {
		field, ok := phenotype.ParseField(name)
		if !ok {
			return p, fmt.Errorf("unknown field %q", name)
		}
		p = p.With(field, v.GetNumberValue())
	}
	for name, v := range f["traits"].GetStructValue().GetFields() {
		for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
			if k.String() == name {
				p.Traits[k] = uint8(v.GetNumberValue())
			}
		}
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("decode phenotype: %w", err)
	}
	return p, nil
}

// StatsStruct encodes session counters.
func StatsStruct(st engine.Stats) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"frames":         float64(st.Frames),
		"dropped":        float64(st.Dropped),
		"epochs_run":     float64(st.EpochsRun),
		"epochs_skipped": float64(st.EpochsSkipped),
		"commits":        float64(st.Commits),
		"rejects":        float64(st.Rejects),
		"promotions":     float64(st.Promotions),
	})
}

// StatsFromStruct decodes session counters.
func StatsFromStruct(s *structpb.Struct) engine.Stats {
	f := s.GetFields()
	n := func(k string) uint64 { return uint64(f[k].GetNumberValue()) }
	return engine.Stats{
		Frames:        n("frames"),
		Dropped:       n("dropped"),
		EpochsRun:     n("epochs_run"),
		EpochsSkipped: n("epochs_skipped"),
		Commits:       n("commits"),
		Rejects:       n("rejects"),
		Promotions:    n("promotions"),
	}
}

// #endregion wire
