package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/profile"
	"github.com/danielpatrickdp/adaptive-input/internal/sim"
)

// playerSession is a session optionally backed by the profile store.
type playerSession struct {
	*engine.Session
	profiles *profile.Store
	recorder *profile.Recorder
}

// newPlayerSession loads the player's profile when playerID is set and
// persists every epoch back to it.
func newPlayerSession(playerID string, opts engine.Options) (*playerSession, error) {
	ps := &playerSession{}
	initial := phenotype.Default()
	if playerID != "" {
		store, err := openProfiles()
		if err != nil {
			return nil, err
		}
		ps.profiles = store

		loaded, err := store.Load(playerID)
		if errors.Is(err, phenotype.ErrCorruptPersistedState) {
			logging.New("cli").Warn("starting from default profile", "player_id", playerID, "error", err)
		} else if err != nil {
			store.Close()
			return nil, err
		}
		if initial, err = store.Save(playerID, loaded); err != nil {
			store.Close()
			return nil, err
		}
		ps.recorder = store.Recorder(playerID, opts)
		next := opts.OnEpoch
		opts.OnEpoch = func(rep engine.EpochReport) {
			ps.recorder.Record(rep)
			if next != nil {
				next(rep)
			}
		}
	}

	sess, err := engine.NewSession(initial, opts)
	if err != nil {
		ps.Close()
		return nil, err
	}
	ps.Session = sess
	return ps, nil
}

// Close releases the profile store.
func (ps *playerSession) Close() error {
	if ps.profiles == nil {
		return nil
	}
	return ps.profiles.Close()
}

// feed pushes n generated frames into frames, paced to wall-clock time
// when realtime is set, then closes the channel.
func feed(ctx context.Context, g *sim.Generator, n int, realtime bool, frames chan<- input.Frame) error {
	defer close(frames)
	start := time.Now()
	for i := 0; n <= 0 || i < n; i++ {
		f := g.Next()
		if realtime {
			if wait := time.Until(start.Add(f.At)); wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case frames <- f:
		}
	}
	return nil
}

func generator(name string, seed int64) (*sim.Generator, error) {
	p, err := sim.ByName(name)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return sim.NewGenerator(p, cfg.SamplingRateHz, seed), nil
}
