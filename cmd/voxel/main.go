package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/voxel.report/internal/config"
	"github.com/banshee-data/voxel.report/internal/fsutil"
	"github.com/banshee-data/voxel.report/internal/monitoring"
	"github.com/banshee-data/voxel.report/internal/security"
	"github.com/banshee-data/voxel.report/internal/version"
	"github.com/banshee-data/voxel.report/internal/voxel/l1cameras"
	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
	"github.com/banshee-data/voxel.report/internal/voxel/monitor"
	"github.com/banshee-data/voxel.report/internal/voxel/pipeline"
	"github.com/banshee-data/voxel.report/internal/voxel/recorder"
	"github.com/banshee-data/voxel.report/internal/voxel/storage/sqlite"
)

var (
	configPath      = flag.String("config", "", "Reconstruction config JSON (defaults built in)")
	calibrationPath = flag.String("calibration", "calibration.json", "Camera calibration JSON")
	framesDir       = flag.String("frames", "frames", "Frames root directory, one sub-directory per camera id")
	startFrame      = flag.Int("start", 0, "First frame to process")
	frameCount      = flag.Int("count", 0, "Number of frames to process (0 = all)")
	dbPath          = flag.String("db", "", "SQLite database for sessions and trails (disabled if empty)")
	recordPath      = flag.String("record", "", "Write processed frames to this protobuf recording")
	plotPath        = flag.String("plot", "", "Write a PNG of every identity trail here when done")
	listen          = flag.String("listen", "", "Serve the debug monitor on this address (e.g. :8081)")
	interval        = flag.Duration("interval", -1, "Frame pacing interval (negative = use config frame_interval)")
	debug           = flag.Bool("debug", false, "Enable per-frame debug logging")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

// options carries everything run needs, decoupled from the flag set.
type options struct {
	ConfigPath      string
	CalibrationPath string
	FramesDir       string
	Start           int
	Count           int
	DBPath          string
	RecordPath      string
	PlotPath        string
	Listen          string
	Interval        time.Duration
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("voxel %s\n", version.String())
		return
	}
	monitoring.SetDebug(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, options{
		ConfigPath:      *configPath,
		CalibrationPath: *calibrationPath,
		FramesDir:       *framesDir,
		Start:           *startFrame,
		Count:           *frameCount,
		DBPath:          *dbPath,
		RecordPath:      *recordPath,
		PlotPath:        *plotPath,
		Listen:          *listen,
		Interval:        *interval,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("voxel: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func loadConfig(path string) (*config.ReconstructionConfig, error) {
	if path == "" {
		return config.DefaultReconstructionConfig(), nil
	}
	return config.LoadReconstructionConfig(path)
}

// cameraDir returns the frame directory of one camera, refusing ids that
// would escape the frames root.
func cameraDir(root, id string) (string, error) {
	dir := filepath.Join(root, security.SanitizeFilename(id))
	if err := security.ValidatePathWithinDirectory(dir, root); err != nil {
		return "", fmt.Errorf("camera %s: %w", id, err)
	}
	return dir, nil
}

func openSequence(fsys fsutil.FileSystem, opts options) (*l1cameras.Sequence, error) {
	cal, err := l1cameras.LoadCalibration(fsys, opts.CalibrationPath)
	if err != nil {
		return nil, err
	}
	cams := make([]*l1cameras.SequenceCamera, 0, len(cal.Cameras))
	for _, cc := range cal.Cameras {
		dir, err := cameraDir(opts.FramesDir, cc.ID)
		if err != nil {
			return nil, err
		}
		cam, err := l1cameras.NewSequenceCamera(fsys, dir, cc)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", cc.ID, err)
		}
		cams = append(cams, cam)
	}
	return l1cameras.NewSequence(cams, opts.Start, opts.Count)
}

func run(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	for _, out := range []string{opts.DBPath, opts.RecordPath, opts.PlotPath} {
		if out == "" {
			continue
		}
		if err := security.ValidateOutputPath(out); err != nil {
			return err
		}
	}

	seq, err := openSequence(fsutil.OSFileSystem{}, opts)
	if err != nil {
		return err
	}
	cameras := seq.Cameras()
	log.Printf("voxel %s: playing %d frames from %d cameras", version.String(), seq.Len(), len(cameras))

	space, err := l2space.Build(ctx, cameras, cfg.SpaceParams())
	if err != nil {
		return err
	}

	pcfg := cfg.PipelineConfig()
	k := pcfg.Cluster.K
	var sinks []pipeline.FrameSink

	var db *sqlite.DB
	if opts.DBPath != "" {
		db, err = sqlite.Open(opts.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		store := sqlite.NewTrailStore(db.DB)
		id, err := store.StartSession(ctx, cfg, len(cameras), k, time.Now())
		if err != nil {
			return err
		}
		log.Printf("Recording session %s to %s", id, opts.DBPath)
		sinks = append(sinks, store)
	}

	if opts.RecordPath != "" {
		rec, err := recorder.Create(opts.RecordPath, k)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("close recording: %v", err)
			}
		}()
		sinks = append(sinks, rec)
	}

	plotter := monitor.NewTrailPlotter("Identity trails", k)
	sinks = append(sinks, plotter)

	var ws *monitor.WebServer
	serveDone := make(chan error, 1)
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	if opts.Listen != "" {
		ws = monitor.NewWebServer(monitor.WebServerConfig{Address: opts.Listen, Space: space, K: k})
		if db != nil {
			if err := db.AttachAdminRoutes(ws.Mux()); err != nil {
				return err
			}
		}
		sinks = append(sinks, ws)
		go func() { serveDone <- ws.Start(serveCtx) }()
	}

	r, err := pipeline.NewReconstructor(space, cameras, pcfg, pipeline.WithSinks(sinks...))
	if err != nil {
		return err
	}

	pace := opts.Interval
	if pace < 0 {
		pace = cfg.GetFrameInterval()
	}
	n, err := r.Run(ctx, seq, pace)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	snap := r.Snapshot()
	for id, trail := range snap.Trails {
		log.Printf("identity %d: %d trail points", id, len(trail))
	}
	log.Printf("Processed %d frames (state %s)", n, snap.State)

	if opts.PlotPath != "" {
		if err := plotter.Save(opts.PlotPath); err != nil {
			return err
		}
		log.Printf("Wrote trail plot to %s", opts.PlotPath)
	}

	if ws != nil {
		if ctx.Err() == nil {
			log.Printf("Sequence complete; serving monitor on %s until interrupted", opts.Listen)
		}
		select {
		case <-ctx.Done():
			stopServe()
			return <-serveDone
		case err := <-serveDone:
			return err
		}
	}
	return ctx.Err()
}
