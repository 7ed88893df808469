package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/amusement-pipeline/audio"
	"github.com/maastricht-university/amusement-pipeline/audio/device"
	"github.com/maastricht-university/amusement-pipeline/clients"
	"github.com/maastricht-university/amusement-pipeline/messaging"
	"github.com/maastricht-university/amusement-pipeline/metrics"
	"github.com/maastricht-university/amusement-pipeline/orchestrator"
	"github.com/maastricht-university/amusement-pipeline/playlist"
	"github.com/maastricht-university/amusement-pipeline/samplelog"
	"github.com/maastricht-university/amusement-pipeline/server"
	"github.com/maastricht-university/amusement-pipeline/session"
	"github.com/maastricht-university/amusement-pipeline/storage"
)

type runOptions struct {
	subject string
	age     int
	gender  string
	typ     string
	videos  []string

	replay         string
	replayInterval time.Duration
	liveStatus     bool
	record         string
	noAudio        bool
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scoring session",
		Long: `Registers the subject and experiment, serves the playback status endpoint,
and scores every frame until the playlist ends, the frame stream ends or the
process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runSession(ctx, o, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.subject, "subject", "anonymous", "subject name")
	f.IntVar(&o.age, "age", 0, "subject age")
	f.StringVar(&o.gender, "gender", "", "subject gender")
	f.StringVar(&o.typ, "type", storage.ExperimentSingle, "experiment type (single or group)")
	f.StringSliceVar(&o.videos, "video", nil, "play these video ids instead of a random playlist")
	f.StringVar(&o.replay, "replay", "", "read frames from a recorded JSON-lines file instead of the landmark service")
	f.DurationVar(&o.replayInterval, "replay-interval", 0, "pause between replayed frames")
	f.BoolVar(&o.liveStatus, "live-status", false, "with --replay, take playback status from the status endpoint instead of the file")
	f.StringVar(&o.record, "record", "", "also write every frame and its playback status to this JSON-lines file")
	f.BoolVar(&o.noAudio, "no-audio", false, "score without a microphone")
	f.String("addr", "", "status server listen address")
	f.String("amqp-url", "", "publish results to this AMQP broker")
	f.String("sample-log", "", "sample log path")
	f.String("outputs", "", "directory for session bundles")
	return cmd
}

func (a *app) runSession(ctx context.Context, o runOptions, out io.Writer) error {
	c := a.cfg
	runID := uuid.NewString()
	start := time.Now()
	log := a.log.WithField("run_id", runID)

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	subj, err := st.GetOrCreateSubject(ctx, o.subject, o.age, o.gender)
	if err != nil {
		return err
	}
	exp, err := st.CreateExperiment(ctx, subj.ID, o.typ, runID, start)
	if err != nil {
		return err
	}
	log = log.WithField("experiment_id", exp.ID)

	ids, err := buildPlaylist(ctx, st, o.videos, c.Playlist.Target, c.Playlist.Slack)
	if err != nil {
		return err
	}
	log.WithField("videos", ids).Info("playlist ready")

	m := metrics.New()
	h := clients.NewHTTP()
	board := server.NewStatusBoard()
	hub := server.NewHub(a.log)
	srv := server.New(c.Server.Addr, board, hub, m, a.log)
	srv.SetPlaylist(ids)

	var (
		frames orchestrator.FrameSource
		status orchestrator.StatusSource = board
	)
	if o.replay != "" {
		rs, err := orchestrator.OpenReplay(o.replay, orchestrator.ReplayInterval(o.replayInterval))
		if err != nil {
			return err
		}
		defer rs.Close()
		frames = rs
		if !o.liveStatus {
			status = rs
		}
	} else {
		if c.Services.Landmarks.URL == "" {
			return fmt.Errorf("%w: services.landmarks.url is required without --replay", orchestrator.ErrFrameSourceUnavailable)
		}
		frames = orchestrator.NewLandmarkSource(h, c.Services.Landmarks.URL)
	}
	if o.record != "" {
		f, err := os.Create(o.record)
		if err != nil {
			return err
		}
		defer f.Close()
		frames = orchestrator.Recording(frames, status, orchestrator.NewReplayWriter(f))
	}

	d := orchestrator.Deps{
		Frames:     frames,
		Status:     status,
		Catalog:    st,
		Live:       hub,
		Background: []func(context.Context) error{srv.Run},
		Metrics:    m,
		Log:        a.log,
	}

	if !o.noAudio {
		if c.Services.Classifier.URL == "" {
			return fmt.Errorf("%w: services.classifier.url is required unless --no-audio", orchestrator.ErrAudioUnavailable)
		}
		d.Estimator = audio.NewEstimator(audio.EstimatorConfig{
			WindowLength:    c.Audio.WindowLength,
			Period:          c.Audio.ClassifyPeriod,
			LaughterClasses: c.Audio.LaughterClasses,
		}, h.Classifier(c.Services.Classifier.URL, c.Audio.SampleRate), nil, a.log, m)
		d.Audio = device.NewMicrophone(c.Audio.SampleRate, a.log)
	}

	if c.Logging.SampleLog != "" {
		w, err := samplelog.Create(c.Logging.SampleLog, runID, start, c.Logging.SampleInterval)
		if err != nil {
			return err
		}
		defer w.Close()
		d.SampleLog = w
	}

	bundle := orchestrator.NewBundleSink(c.Paths.Outputs, runID, ids)
	d.Sinks = []orchestrator.NamedSink{
		{Name: "store", Sink: orchestrator.NewStoreSink(st)},
		{Name: "bundle", Sink: bundle},
	}
	if c.Messaging.AMQPURL != "" {
		pub, err := messaging.Dial(c.Messaging.AMQPURL, c.Messaging.Exchange, runID, a.log)
		if err != nil {
			// results still reach the store and the bundle
			log.WithError(err).Warn("amqp unavailable, results will not be published")
		} else {
			defer pub.Close()
			d.Sinks = append(d.Sinks, orchestrator.NamedSink{Name: "amqp", Sink: pub})
		}
	}
	if c.Services.Visualization.URL != "" {
		d.Sinks = append(d.Sinks, orchestrator.NamedSink{
			Name: "timeline",
			Sink: orchestrator.NewTimelineSink(h, c.Services.Visualization.URL, runID, filepath.Join(c.Paths.Outputs, runID)),
		})
	}

	p, err := orchestrator.NewPipeline(c, exp.ID, d)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if res != nil {
		printSession(out, runID, res, bundle.Path())
	}
	if err != nil {
		return err
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("session done")
	return nil
}

func buildPlaylist(ctx context.Context, st *storage.Store, explicit []string, target, slack time.Duration) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	videos, err := st.ScorableVideos(ctx)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, errors.New("no scorable videos in the catalog, run seed first or pass --video")
	}
	items := make([]playlist.Item, len(videos))
	for i, v := range videos {
		items[i] = playlist.Item{ID: v.ID, Duration: v.Duration}
	}
	return playlist.Random(items, target, slack, nil), nil
}

func printSession(w io.Writer, runID string, res *session.SessionResult, bundle string) {
	fmt.Fprintf(w, "run %s  experiment %d\n", runID, res.ExperimentID)
	for _, s := range res.Segments {
		fmt.Fprintf(w, "  %2d  %-24s  %.3f  (%d samples)\n", s.Position, s.VideoID, s.Mean, s.Samples)
	}
	fmt.Fprintf(w, "total amusement %.3f over %d samples\n", res.Total, res.Samples)
	if bundle != "" {
		fmt.Fprintf(w, "bundle %s\n", bundle)
	}
}
