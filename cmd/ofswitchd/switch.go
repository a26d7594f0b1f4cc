package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/jackyang74/oftest/config"
	"github.com/jackyang74/oftest/metrics"
	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/ofp4sw"
	"github.com/jackyang74/oftest/pcap"
	"github.com/jackyang74/oftest/session"
	"github.com/jackyang74/oftest/trafgen"
)

const dataplaneQueue = 4096

type emulator struct {
	cfg      *config.Config
	dp       *ofp4sw.ChannelDataplane
	pipe     *ofp4sw.Pipeline
	agent    *ofp4sw.Agent
	registry *prometheus.Registry
	observer *metrics.Session
	// one single-port tester per port with a replay file
	replays []*trafgen.Soft
	files   []io.Closer
}

func newEmulator(cfg *config.Config) (*emulator, error) {
	e := &emulator{
		cfg:      cfg,
		dp:       ofp4sw.NewChannelDataplane(dataplaneQueue),
		registry: prometheus.NewRegistry(),
	}
	rec := pcap.NewRecorder(e.dp)
	e.pipe = ofp4sw.NewPipeline(cfg.Switch.PipelineOptions(), rec)
	e.agent = ofp4sw.NewAgent(e.pipe)

	for _, p := range cfg.Switch.Ports {
		if err := e.pipe.AddPort(p.Number, p.PortState()); err != nil {
			e.Close()
			return nil, fmt.Errorf("add port %d: %w", p.Number, err)
		}
		if err := e.setupPort(rec, p); err != nil {
			e.Close()
			return nil, err
		}
	}

	observer, err := metrics.NewSession(e.registry)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.observer = observer
	if err := e.registry.Register(metrics.NewPipeline(e.pipe)); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *emulator) setupPort(rec *pcap.Recorder, p config.Port) error {
	if p.Capture != "" {
		f, err := os.Create(p.Capture)
		if err != nil {
			return fmt.Errorf("port %d capture: %w", p.Number, err)
		}
		e.files = append(e.files, f)
		if err := rec.Capture(p.Number, f); err != nil {
			return err
		}
	}
	if p.Replay == "" {
		return nil
	}
	f, err := os.Open(p.Replay)
	if err != nil {
		return fmt.Errorf("port %d replay: %w", p.Number, err)
	}
	defer f.Close()
	tester := trafgen.NewSoft(e.dp.Peer(), trafgen.SoftOptions{Ports: 1, FirstPort: p.Number})
	n, err := tester.LoadPcap(0, f)
	if err != nil {
		return fmt.Errorf("port %d replay %s: %w", p.Number, p.Replay, err)
	}
	err = errors.Join(
		tester.SetReplayCnt(0, p.ReplayCount),
		tester.SetReplayRate(0, p.ReplayRate),
		tester.SetEnable(0),
	)
	if err != nil {
		return fmt.Errorf("port %d replay: %w", p.Number, err)
	}
	klog.InfoS("Replay loaded", "port", p.Number, "file", p.Replay, "frames", n)
	e.replays = append(e.replays, tester)
	return nil
}

func (e *emulator) Close() error {
	var errs []error
	for _, tester := range e.replays {
		errs = append(errs, tester.SetStopReplay(0))
	}
	for _, f := range e.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, cfg *config.Config) error {
	e, err := newEmulator(cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	klog.InfoS("Switch started", "datapathID", cfg.Switch.DatapathID, "tables", e.pipe.NumTables(), "ports", len(cfg.Switch.Ports))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.pipe.Run(ctx) })
	g.Go(func() error { return e.pipe.RunExpiry(ctx, cfg.Switch.ExpiryInterval) })
	g.Go(func() error { return e.drain(ctx) })
	if cfg.Metrics.Address != "" {
		g.Go(func() error { return e.serveMetrics(ctx) })
	}
	g.Go(func() error { return e.control(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drain consumes what the switch transmits; nothing is wired behind the
// emulated ports.
func (e *emulator) drain(ctx context.Context) error {
	peer := e.dp.Peer()
	for {
		port, data, err := peer.ReceiveFromPort(ctx)
		if err != nil {
			return err
		}
		klog.V(5).InfoS("Frame transmitted", "port", port, "length", len(data))
	}
}

func (e *emulator) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              e.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	klog.InfoS("Serving metrics", "address", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return ctx.Err()
}

// control keeps one controller connection at a time, dialing again after
// Retry when it is lost.
func (e *emulator) control(ctx context.Context) error {
	if e.cfg.Controller.Listen {
		return e.listen(ctx)
	}
	addr := e.cfg.Controller.Address
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			e.serve(ctx, conn)
		} else if ctx.Err() == nil {
			klog.InfoS("Controller unreachable", "address", addr, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.Controller.Retry):
		}
	}
}

func (e *emulator) listen(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", e.cfg.Controller.Address)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	klog.InfoS("Waiting for controller", "address", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		e.serve(ctx, conn)
	}
}

func (e *emulator) serve(ctx context.Context, conn net.Conn) {
	logger := klog.LoggerWithValues(klog.Background(), "controller", conn.RemoteAddr().String())
	sess := session.New(conn, session.Options{
		Observer: e.observer,
		Handler: func(s *session.Session, msg *ofp4.Message) {
			for _, reply := range e.agent.Handle(msg) {
				if err := s.Send(reply); err != nil {
					logger.V(2).Info("Reply not sent", "type", ofp4.TypeName(reply.Type), "err", err)
					return
				}
			}
		},
	})
	defer sess.Close()

	hctx, cancel := context.WithTimeout(ctx, e.cfg.Controller.HandshakeTimeout)
	err := sess.Handshake(hctx)
	cancel()
	if err != nil {
		logger.Error(err, "Handshake failed")
		return
	}
	logger.Info("Controller connected", "version", sess.Version())

	e.agent.Attach(sess)
	defer e.agent.Attach(nil)
	for _, tester := range e.replays {
		if err := tester.SetBeginReplay(0); err != nil {
			logger.Error(err, "Replay not started")
		}
	}
	defer func() {
		for _, tester := range e.replays {
			tester.SetStopReplay(0)
		}
	}()

	select {
	case <-ctx.Done():
	case <-sess.Done():
	}
	logger.Info("Controller disconnected")
}
