package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"

	"github.com/ironsheep/lane-detect/internal/config"
	"github.com/ironsheep/lane-detect/internal/pipeline"
	"github.com/ironsheep/lane-detect/internal/report"
	"github.com/ironsheep/lane-detect/internal/server"
	"github.com/ironsheep/lane-detect/internal/video"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath = flag.String("config", "", "JSON tuning file (defaults are used when empty)")
	outPath    = flag.String("out", "", "output video file, or a directory for PNG frames (default: live display)")
	framesDir  = flag.String("frames", "", "read frames from a directory of images instead of a video")
	recordPath = flag.String("record", "", "SQLite file to record per-frame lane results in")
	plotPath   = flag.String("plot", "", "PNG file for a plot of the lane slopes per frame")
	workers    = flag.Int("workers", 0, "frames processed concurrently (overrides the config)")
	maxWidth   = flag.Int("max-width", 0, "downscale frames wider than this (overrides the config)")
)

func usage() {
	fmt.Println("lane-detect - find the lane lines in road video")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lane-detect [options] <video>     Process a video and show or save the result")
	fmt.Println("  lane-detect [options] -frames DIR Process a directory of still frames")
	fmt.Println("  lane-detect serve [options]       Run the MCP server over stdin/stdout")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("An -out path without an extension is treated as a directory of PNG frames.")
	fmt.Println("Press q then Enter to stop a live run.")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  LANE_DETECT_LOG_LEVEL=debug    Enable debug logging")
}

func main() {
	flag.Usage = usage

	serve := false
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("lane-detect %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		case "serve":
			serve = true
			os.Args = append(os.Args[:1], os.Args[2:]...)
		}
	}
	flag.Parse()

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	debug := os.Getenv("LANE_DETECT_LOG_LEVEL") == "debug"
	if debug {
		log.Printf("lane-detect v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	cfg, err := loadConfig(*configPath, setFlags())
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	proc, err := pipeline.NewProcessor(cfg)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	if serve {
		server.Version = Version
		if err := server.New(proc).Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}

	if err := run(proc, flag.Arg(0), debug); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// setFlags reports which flags were given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads the tuning file, if any, and applies the command-line
// overrides named in set.
func loadConfig(path string, set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if set["workers"] {
		n := *workers
		cfg.Workers = &n
	}
	if set["max-width"] {
		n := *maxWidth
		cfg.MaxWidth = &n
	}
	return cfg, nil
}

// openSource picks a frame directory or a decoded video. The returned frame
// rate paces encoded and displayed output.
func openSource(ctx context.Context, framesDir, videoPath string) (pipeline.Source, string, float64, error) {
	if framesDir != "" {
		src, err := video.OpenDir(framesDir)
		if err != nil {
			return nil, "", 0, err
		}
		return src, framesDir, video.DefaultFrameRate, nil
	}
	if videoPath == "" {
		return nil, "", 0, errors.New("no input: give a video path or -frames DIR")
	}
	src, err := video.OpenFFmpeg(ctx, videoPath)
	if err != nil {
		return nil, "", 0, err
	}
	return src, videoPath, src.Info().FrameRate, nil
}

// openSink maps -out to a sink: empty shows a window, a path without an
// extension collects PNG frames, anything else is encoded by ffmpeg.
func openSink(out string, fps float64) (pipeline.Sink, error) {
	switch {
	case out == "":
		return video.NewDisplaySink("Output", fps), nil
	case filepath.Ext(out) == "":
		return video.NewDirSink(out, "frame")
	default:
		return video.NewFileSink(out, fps), nil
	}
}

// finishRun stores the totals of a recorded run, partial ones included when
// the run failed, and returns runErr in preference to a recording error.
func finishRun(recRun *report.Run, stats pipeline.Stats, runErr error) error {
	if recRun == nil {
		return runErr
	}
	if err := recRun.Finish(stats); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func run(proc *pipeline.Processor, videoPath string, debug bool) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := video.WatchQuit(ctx, os.Stdin, video.DefaultQuitKey)
	defer cancel()

	src, name, fps, err := openSource(ctx, *framesDir, videoPath)
	if err != nil {
		return err
	}
	defer src.Close()

	sink, err := openSink(*outPath, fps)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close output")
		}
	}()

	opts := []pipeline.Option{
		pipeline.WithWorkers(proc.Config().GetWorkers()),
		pipeline.WithDebug(debug),
	}

	var rec *report.Recorder
	var recRun *report.Run
	if *recordPath != "" {
		if rec, err = report.Open(*recordPath); err != nil {
			return err
		}
		defer rec.Close()
		if recRun, err = rec.StartRun(name, proc.Config().GetSidePolicy()); err != nil {
			return err
		}
		opts = append(opts, pipeline.WithObserver(recRun))
	}

	var frames []report.FrameRecord
	if *plotPath != "" {
		opts = append(opts, pipeline.WithObserver(pipeline.ObserverFunc(func(index int, res *pipeline.FrameResult) error {
			frames = append(frames, report.NewFrameRecord(index, len(res.Segments), res.Lanes))
			return nil
		})))
	}

	stats, err := pipeline.NewRunner(proc, src, sink, opts...).Run(ctx)
	log.Printf("%d frames: %d with both lanes, %d with one, %d with none, %d degenerate",
		stats.Frames, stats.TwoLines, stats.OneLine, stats.NoLines, stats.Degenerate)
	if err := finishRun(recRun, stats, err); err != nil {
		return err
	}
	if *plotPath != "" {
		if err := report.PlotSlopes(frames, filepath.Base(name), *plotPath); err != nil {
			return err
		}
		log.Printf("slope plot written to %s", *plotPath)
	}
	return nil
}
