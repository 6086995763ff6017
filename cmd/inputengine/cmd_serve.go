package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/adaptive-input/internal/egress"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
)

var serveFlags struct {
	profile string
	seed    int64
	player  string
	every   int
	buffer  int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a live session and stream its controls over gRPC",
	Long: `Runs a real-time session fed by a synthetic driver and serves the
processed controls, the phenotype in force and session counters on the
egress address until interrupted. The session ends with a final epoch.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.profile, "profile", "smooth", "driver profile: aggressive, smooth or idle")
	f.Int64Var(&serveFlags.seed, "seed", 1, "generator seed")
	f.StringVar(&serveFlags.player, "player", "", "persist to this player's profile")
	f.IntVar(&serveFlags.every, "every", 10, "publish every Nth frame to subscribers")
	f.IntVar(&serveFlags.buffer, "buffer", 256, "per-subscriber buffer")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := logging.New("serve")
	g, err := generator(serveFlags.profile, serveFlags.seed)
	if err != nil {
		return err
	}

	hub := egress.NewHub(serveFlags.buffer, serveFlags.every)
	defer hub.Close()
	opts := cfg.Options()
	opts.Sink = hub

	sess, err := newPlayerSession(serveFlags.player, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	lis, err := net.Listen("tcp", cfg.Egress.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Egress.Addr, err)
	}
	srv := egress.NewServer(hub)
	srv.Attach(egress.SessionSource{Session: sess.Session})
	gs := grpc.NewServer()
	egress.Register(gs, srv)

	// An interrupt stops the feed; the session then drains, runs its final
	// epoch and only then is the server stopped.
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	feedCtx, cancelFeed := context.WithCancel(sigCtx)
	defer cancelFeed()

	frames := make(chan input.Frame, 256)
	var eg errgroup.Group
	eg.Go(func() error {
		logger.Info("egress listening", "addr", lis.Addr().String(), "session_id", sess.ID())
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			stop()
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	eg.Go(func() error { return feed(feedCtx, g, 0, true, frames) })
	eg.Go(func() error {
		defer gs.GracefulStop()
		defer hub.Close()
		defer cancelFeed()
		return sess.Run(cmd.Context(), frames)
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	st := sess.Stats()
	logger.Info("session ended",
		"session_id", sess.ID(),
		"frames", st.Frames,
		"dropped", st.Dropped,
		"epochs", st.EpochsRun,
		"commits", st.Commits,
		"rejects", st.Rejects,
	)
	return nil
}
