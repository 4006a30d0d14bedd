package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/pdok/tasker/config"
	"github.com/pdok/tasker/jobmanager"
	"github.com/pdok/tasker/logging"
	"github.com/pdok/tasker/metrics"
	"github.com/pdok/tasker/submit"
	"github.com/pdok/tasker/tasker"
	"github.com/pdok/tasker/zoomrange"
)

const CONFIG string = `config`
const REQUEST string = `request`
const LOGLEVEL string = `logLevel`
const LOGCONSOLE string = `logConsole`
const DRYRUN string = `dryRun`
const PUSHGATEWAY string = `pushgateway`

func main() {
	app := newApp()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		stop()
		logging.Build(logging.Config{Component: app.Name}, os.Stderr).Fatal().Err(err).Msg("tasker failed")
	}
}

//nolint:funlen
func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "tasker"
	app.Usage = "Plans the split and merge tasks of a raster ingestion and submits them to the job manager"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     CONFIG,
			Aliases:  []string{"c"},
			Usage:    "Tasker configuration (YAML)",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.StringFlag{
			Name:     LOGLEVEL,
			Aliases:  []string{"l"},
			Usage:    "Log level: debug, info, warn or error",
			Value:    "info",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(LOGLEVEL)},
		},
		&cli.BoolFlag{
			Name:     LOGCONSOLE,
			Usage:    "Human readable instead of JSON logging",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(LOGCONSOLE)},
		},
		&cli.BoolFlag{
			Name:     DRYRUN,
			Aliases:  []string{"n"},
			Usage:    "Write the planned tasks as newline delimited JSON to stdout instead of submitting them",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(DRYRUN)},
		},
		&cli.StringFlag{
			Name:     PUSHGATEWAY,
			Usage:    "URL of a Prometheus push gateway the metrics are pushed to when done",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(PUSHGATEWAY)},
		},
	}

	requestFlag := &cli.StringFlag{
		Name:     REQUEST,
		Aliases:  []string{"r"},
		Usage:    "Ingestion request (JSON), - for stdin",
		Value:    "-",
		Required: false,
		EnvVars:  []string{strcase.ToScreamingSnake(REQUEST)},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "split",
			Usage:  "Plan the split tasks of a new layer from a single source",
			Flags:  []cli.Flag{requestFlag},
			Action: splitAction,
		},
		{
			Name:   "merge",
			Usage:  "Plan the merge tasks of sources onto a new or existing layer",
			Flags:  []cli.Flag{requestFlag},
			Action: mergeAction,
		},
	}

	app.After = func(c *cli.Context) error {
		if url := c.String(PUSHGATEWAY); url != "" {
			if err := metrics.Push(url, app.Name); err != nil {
				return fmt.Errorf("could not push metrics: %w", err)
			}
		}
		return nil
	}
	return app
}

type run struct {
	cfg    *config.Config
	logger zerolog.Logger
	dryRun bool
	out    io.Writer
}

func newRun(c *cli.Context, command string) (*run, error) {
	cfg, err := config.Load(c.String(CONFIG))
	if err != nil {
		return nil, err
	}
	logger := logging.Build(logging.Config{
		Level:     c.String(LOGLEVEL),
		Console:   c.Bool(LOGCONSOLE),
		Component: command,
	}, c.App.ErrWriter)
	dryRun := c.Bool(DRYRUN)
	if !dryRun && cfg.JobManager.URL == "" {
		return nil, fmt.Errorf("%w: jobManager.url is required unless running dry", config.ErrInvalidConfig)
	}
	return &run{cfg: cfg, logger: logger, dryRun: dryRun, out: c.App.Writer}, nil
}

func openRequest(c *cli.Context) (io.ReadCloser, error) {
	p := c.String(REQUEST)
	if p == "" || p == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(p)
}

func splitAction(c *cli.Context) error {
	r, err := newRun(c, "split")
	if err != nil {
		return err
	}
	in, err := openRequest(c)
	if err != nil {
		return err
	}
	defer in.Close()
	req, err := tasker.DecodeSplitRequest(in)
	if err != nil {
		return err
	}

	grid, err := r.cfg.Grid()
	if err != nil {
		return err
	}
	zoomPlanner, err := zoomrange.NewPlanner(r.cfg.ZoomBands, grid)
	if err != nil {
		return err
	}
	ranges := zoomPlanner.Plan(req.Resolution)
	r.logger.Info().Str("discreteId", req.DiscreteID).Float64("resolution", req.Resolution).
		Stringer("source", req.Source).Interface("zoomRanges", ranges).Msg("planning split")

	planner, err := tasker.NewSplitPlanner(grid, r.cfg.BBoxSizeTiles)
	if err != nil {
		return err
	}
	tasks, err := planner.Plan(req.Layer(), ranges)
	if err != nil {
		return err
	}
	job := submit.Job{Type: r.cfg.Split.JobType, ResourceID: req.DiscreteID, Version: req.Version, Parameters: req.LayerMetadata}
	return emit(c.Context, r, job, r.cfg.Split.TaskType, r.cfg.Split.TaskBatchSize, tasks)
}

func mergeAction(c *cli.Context) error {
	r, err := newRun(c, "merge")
	if err != nil {
		return err
	}
	in, err := openRequest(c)
	if err != nil {
		return err
	}
	defer in.Close()
	req, err := tasker.DecodeMergeRequest(in)
	if err != nil {
		return err
	}
	target, err := req.Target()
	if err != nil {
		return err
	}

	grid, err := r.cfg.Grid()
	if err != nil {
		return err
	}
	maxZoom := grid.ResolutionToZoom(req.Resolution)
	r.logger.Info().Str("discreteId", req.DiscreteID).Int("sources", len(req.Sources)).
		Int("maxZoom", maxZoom).Msg("planning merge")

	planner, err := tasker.NewMergePlanner(grid, r.cfg.Merge.TileBatchSize, r.cfg.Storage.Type)
	if err != nil {
		return err
	}
	planner.OnZoom = func(s tasker.ZoomStats) {
		r.logger.Debug().Int("zoom", s.Zoom).Int("groups", s.Groups).Ints("members", s.Members).Msg("partitioned")
	}
	tasks, err := planner.Plan(target, req.Layers(), maxZoom)
	if err != nil {
		return err
	}
	job := submit.Job{Type: r.cfg.Merge.JobType, ResourceID: req.DiscreteID, Version: req.Version, Parameters: req.LayerMetadata}
	return emit(c.Context, r, job, r.cfg.Merge.TaskType, r.cfg.Merge.TaskBatchSize, tasks)
}

// emit submits the tasks, or writes them to the app's output when running dry.
func emit[T any](ctx context.Context, r *run, job submit.Job, taskType string, batchSize int, tasks iter.Seq[T]) error {
	if r.dryRun {
		n, err := writeTasks(r.out, taskType, tasks)
		metrics.ObserveTasksPlanned(taskType, n)
		r.logger.Info().Int("tasks", n).Msg("dry run, nothing submitted")
		return err
	}

	client, err := jobmanager.New(jobmanager.Config{
		URL:          r.cfg.JobManager.URL,
		Timeout:      r.cfg.JobManager.Timeout,
		ProducerName: r.cfg.JobManager.ProducerName,
	}, r.logger)
	if err != nil {
		return err
	}
	submitter, err := submit.NewSubmitter(client, batchSize, r.logger)
	if err != nil {
		return err
	}
	_, err = submit.Submit(ctx, submitter, job, taskType, tasks)
	return err
}

// writeTasks writes one submit.Task per line.
func writeTasks[T any](w io.Writer, taskType string, tasks iter.Seq[T]) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for params := range tasks {
		if err := enc.Encode(submit.Task{Type: taskType, Parameters: params}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
