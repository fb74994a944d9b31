// Command fiducial-tracker replays detector candidate frames through the
// marker tracker, records lifecycle events to sqlite and serves live state
// over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/config"
	"github.com/banshee-data/fiducial-tracker/internal/db"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial/debug"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial/ingest"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial/monitor"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial/rpc"
	sqlite "github.com/banshee-data/fiducial-tracker/internal/fiducial/storage/sqlite"
	"github.com/banshee-data/fiducial-tracker/internal/monitoring"
	"github.com/banshee-data/fiducial-tracker/internal/timeutil"
	"github.com/banshee-data/fiducial-tracker/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to tuning config JSON (defaults compiled in)")
	inputPath    = flag.String("input", "-", "Candidate frames as JSON lines; - reads stdin")
	dbPath       = flag.String("db", "", "SQLite event log path (disabled when empty)")
	sessionLabel = flag.String("session-label", "", "Label stored with the event log session")
	listen       = flag.String("listen", "", "HTTP monitor listen address, e.g. :8080")
	grpcListen   = flag.String("grpc-listen", "", "gRPC listen address, e.g. :50051")
	realtime     = flag.Bool("realtime", false, "Pace replay by frame timestamps")
	debugMode    = flag.Bool("debug", false, "Log association debug frames")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// options is the parsed command line.
type options struct {
	ConfigPath   string
	Input        io.Reader
	DBPath       string
	SessionLabel string
	Listen       string
	GRPCListen   string
	Realtime     bool
	Debug        bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	in := os.Stdin
	if *inputPath != "-" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatalf("failed to open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, options{
		ConfigPath:   *configPath,
		Input:        in,
		DBPath:       *dbPath,
		SessionLabel: *sessionLabel,
		Listen:       *listen,
		GRPCListen:   *grpcListen,
		Realtime:     *realtime,
		Debug:        *debugMode,
	})
	if err != nil {
		log.Fatalf("fiducial-tracker: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func run(ctx context.Context, opts options) error {
	monitoring.SetDebug(opts.Debug)

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	ids, err := fiducial.NewIDSource(cfg.GetIDSource())
	if err != nil {
		return err
	}
	tracker := fiducial.NewTracker(fiducial.TrackerConfigFromTuning(cfg), ids)
	monitoring.Logf("[tracker] distance=%.1fpx area=%.0fpx² grace=%s max=%d nested=%v ids=%s",
		tracker.Config.DistanceTolerance, tracker.Config.AreaTolerance, tracker.Config.RemovalGracePeriod,
		tracker.Config.MaxMarkers, tracker.Config.SuppressNested, cfg.GetIDSource())

	collector := debug.NewDebugCollector()
	collector.SetEnabled(opts.Debug)
	if opts.Debug {
		tracker.DebugCollector = collector
	}

	var (
		database *db.DB
		sessions *sqlite.SessionStore
		events   *sqlite.EventStore
	)
	if opts.DBPath != "" {
		database, err = db.Open(opts.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		sessions = sqlite.NewSessionStore(database.DB)
		sess, err := sessions.Start(opts.SessionLabel)
		if err != nil {
			return err
		}
		defer func() {
			if err := sessions.End(sess.SessionID); err != nil {
				monitoring.Logf("[events] %v", err)
			}
		}()
		events = sqlite.NewEventStore(database.DB, sess.SessionID)
		tracker.Events = events
		monitoring.Logf("[events] recording session %s to %s", sess.SessionID, opts.DBPath)
	}

	metrics := monitor.NewMetrics(tracker)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	serving := false

	if opts.Listen != "" {
		serving = true
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:  opts.Listen,
			Tracker:  tracker,
			Events:   events,
			Sessions: sessions,
			DB:       database,
			Metrics:  metrics,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				monitoring.Logf("[monitor] %v", err)
				cancel()
			}
		}()
	}

	if opts.GRPCListen != "" {
		lis, err := net.Listen("tcp", opts.GRPCListen)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("grpc listen: %w", err)
		}
		serving = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rpc.NewServer(tracker).Serve(ctx, lis); err != nil {
				monitoring.Logf("[gRPC] %v", err)
				cancel()
			}
		}()
	}

	frames, replayErr := replay(ctx, opts, tracker, collector, metrics)
	monitoring.Logf("[ingest] replayed %d frames; %d markers live", frames, tracker.Len())
	if events != nil {
		if err := events.Err(); err != nil {
			monitoring.Logf("[events] event log incomplete: %v", err)
		}
	}

	if replayErr == nil && serving {
		monitoring.Logf("input finished; serving until interrupted")
		<-ctx.Done()
	}
	cancel()
	wg.Wait()

	if errors.Is(replayErr, context.Canceled) {
		return nil
	}
	return replayErr
}

// replay runs every input frame through the tracker. It mirrors
// ingest.Replay but times each Update and brackets it with debug capture.
func replay(ctx context.Context, opts options, tracker *fiducial.Tracker, collector *debug.DebugCollector, metrics *monitor.Metrics) (int, error) {
	r := ingest.NewReader(opts.Input)
	pacer := timeutil.NewPacer(nil)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if opts.Realtime {
			if err := pacer.Wait(ctx, f.Timestamp); err != nil {
				return n, err
			}
		}

		collector.BeginFrame(uint64(n + 1))
		start := time.Now()
		res := tracker.Update(f.Candidates, f.Timestamp)
		metrics.ObserveFrame(time.Since(start), len(f.Candidates), res)
		n++

		if f.Rejected > 0 {
			monitoring.Debugf("[ingest] line %d: dropped %d malformed candidates", f.Line, f.Rejected)
		}
		if df := collector.Emit(); df != nil {
			monitoring.Debugf("[tracker] frame %d: %d associations, %d suppressions, %d transitions",
				df.FrameID, len(df.Associations), len(df.Suppressions), len(df.Transitions))
		}
	}
}
