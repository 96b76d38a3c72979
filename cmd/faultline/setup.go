package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"faultline/internal/collector"
	"faultline/internal/config"
	"faultline/internal/logstream"
	"faultline/internal/observ"
	"faultline/internal/prof"
	"faultline/internal/render"
	"faultline/internal/report"
	"faultline/internal/taxonomy"
)

// session is everything a command needs after flags and configuration are
// resolved. router and reporter are nil unless the command writes logs.
type session struct {
	cfg      config.Config
	reg      *taxonomy.Registry
	renderer *render.Renderer
	timer    *observ.Timer
	log      *zap.Logger
	router   *logstream.Router
	reporter *report.Reporter
}

// setup resolves configuration for cmd. The returned cleanup closes log
// streams and prints timings; it is never nil when err is nil.
func setup(cmd *cobra.Command, withPipeline bool) (*session, func(), error) {
	flags := cmd.Root().PersistentFlags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get log-dir flag: %w", err)
	}
	colorFlag, err := flags.GetString("color")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get color flag: %w", err)
	}
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	timings, err := flags.GetBool("timings")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get timings flag: %w", err)
	}

	var pcfg prof.Config
	if pcfg.CPU, err = flags.GetString("cpu-profile"); err != nil {
		return nil, nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if pcfg.Mem, err = flags.GetString("mem-profile"); err != nil {
		return nil, nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if pcfg.Trace, err = flags.GetString("runtime-trace"); err != nil {
		return nil, nil, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}

	s := &session{timer: observ.NewTimer(), log: zap.NewNop()}
	if verbose {
		if s.log, err = zap.NewDevelopment(); err != nil {
			return nil, nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	idx := s.timer.Begin("config")
	if configPath != "" {
		s.cfg, err = config.Load(configPath)
	} else {
		s.cfg, err = config.Discover(".")
	}
	s.timer.End(idx, s.cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	if logDir != "" {
		s.cfg.Logging.Dir = logDir
	}
	if flags.Changed("color") {
		s.cfg.Render.Color = colorFlag
	}

	idx = s.timer.Begin("taxonomy")
	if s.cfg.Taxonomy.File != "" {
		s.reg, err = taxonomy.LoadFile(s.cfg.Taxonomy.File)
	} else {
		s.reg = taxonomy.Default()
	}
	s.timer.End(idx, s.cfg.Taxonomy.File)
	if err != nil {
		return nil, nil, err
	}

	cat := render.DefaultCatalog()
	if s.cfg.Taxonomy.Catalog != "" {
		if cat, err = render.LoadCatalogFile(s.cfg.Taxonomy.Catalog); err != nil {
			return nil, nil, err
		}
	}
	useColor := s.cfg.Render.Color == "on" || (s.cfg.Render.Color == "auto" && isTerminal(os.Stdout))
	s.renderer = render.New(s.reg, cat, render.Options{Color: useColor, Width: s.cfg.Render.Width})

	profiler, err := prof.Start(pcfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := profiler.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
		_ = s.log.Sync()
		if timings {
			fmt.Fprint(cmd.ErrOrStderr(), s.timer.Summary())
		}
	}
	if !withPipeline {
		return s, cleanup, nil
	}

	idx = s.timer.Begin("streams")
	s.router, err = logstream.New(s.reg, logstream.Config{
		BaseDir:          s.cfg.Logging.Dir,
		FallbackSeverity: s.cfg.Logging.FallbackSeverity,
		EmergencyPath:    s.cfg.Logging.EmergencyPath,
		Durable:          s.cfg.Logging.Durable,
		RingSize:         s.cfg.Logging.RingSize,
		Logger:           s.log.Named("logstream"),
	})
	if err != nil {
		s.timer.End(idx, "failed")
		cleanup()
		return nil, nil, err
	}
	if err := s.router.Init(); err != nil {
		// unopened streams fall back to the emergency channel
		s.log.Warn("some log streams could not be opened", zap.Error(err))
	}
	s.timer.End(idx, s.cfg.Logging.Dir)

	s.reporter, err = report.New(report.Config{
		Registry: s.reg,
		Router:   s.router,
		Collectors: collector.Options{
			StreamMode:         s.cfg.Collector.StreamMode,
			EscalateOnCritical: s.cfg.Collector.EscalateOnCritical,
			MaxRecords:         s.cfg.Collector.MaxRecords,
			Logger:             s.log.Named("collector"),
		},
		// log files never carry escape sequences
		Renderer:   render.New(s.reg, cat, render.Options{Width: s.cfg.Render.Width}),
		Logger:     s.log.Named("report"),
		RenderFull: s.cfg.Render.Full,
	})
	if err != nil {
		_ = s.router.CloseAllStreams()
		cleanup()
		return nil, nil, err
	}
	report.SetDefault(s.reporter)
	cmd.SetContext(report.WithReporter(cmd.Context(), s.reporter))

	stopSignals := s.router.HandleSignals(cmd.Context())
	return s, func() {
		stopSignals()
		s.drainBuffered(cmd)
		if err := s.router.CloseAllStreams(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "logstream: close error: %v\n", err)
		}
		cleanup()
	}, nil
}

// drainBuffered routes the records of every collector that does not stream,
// so they reach the log files before the streams close.
func (s *session) drainBuffered(cmd *cobra.Command) {
	for _, name := range s.reporter.Collectors().Names() {
		c, ok := s.reporter.Collectors().Lookup(name)
		if !ok || c.Options().StreamMode {
			continue
		}
		if err := c.Drain(s.reporter.Sink()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "collector %s: drain error: %v\n", name, err)
		}
	}
}
