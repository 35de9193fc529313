// Command sdnctl runs the topology-aware, metric-driven OpenFlow 1.3
// controller: it discovers the switch-and-link topology, measures
// per-link delay/bandwidth/loss, and installs forwarding state along a
// policy-selected path for end-host IP traffic.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/config"
	"github.com/netrack/flowctl/flowctl"
	"github.com/netrack/flowctl/measure"
	"github.com/netrack/flowctl/metrics"
	"github.com/netrack/flowctl/ofp"
	"github.com/netrack/flowctl/ofputil"
	"github.com/netrack/flowctl/routing"
	"github.com/netrack/flowctl/topo"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "sdnctl",
		Short: "Topology-aware, metric-driven OpenFlow 1.3 controller",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML/JSON configuration file")

	root.AddCommand(newRunCommand())
	root.AddCommand(newRouteCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) *zap.SugaredLogger {
	var zlevel zap.AtomicLevel
	if err := zlevel.UnmarshalText([]byte(level)); err != nil {
		zlevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zlevel

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

// controller wires every component together from a loaded configuration.
type controller struct {
	cfg *config.Config
	log *zap.SugaredLogger

	registry *topo.SwitchRegistry
	tracker  *topo.TopologyTracker
	catalog  *topo.PortCatalog

	echo *measure.EchoProbe
	lldp *measure.LLDPDelayProbe
	fuse *measure.DelayFuser

	stats *measure.PortStatsCollector
	bw    *measure.BandwidthEstimator
	loss  *measure.LossEstimator

	engine    *routing.PathEngine
	oracle    *routing.PathOracle
	locator   *flowctl.HostLocator
	installer *flowctl.FlowInstaller
	router    *flowctl.PacketInRouter

	metrics *metrics.Registry
}

func newController(cfg *config.Config, log *zap.SugaredLogger) *controller {
	c := &controller{cfg: cfg, log: log}

	c.metrics = metrics.New()

	c.registry = topo.NewSwitchRegistry(log)
	c.tracker = topo.NewTopologyTracker(log, c.registry, cfg.StableSeconds)
	c.catalog = topo.NewPortCatalog(log, c.registry)

	c.tracker.OnStable(func() { c.metrics.SetGraphStable(true) })
	c.tracker.OnUnstable(func() { c.metrics.SetGraphStable(false) })

	c.echo = measure.NewEchoProbe(log, c.registry, cfg.EchoPeriod, of.OnDemandRoutineRunner{})
	c.lldp = measure.NewLLDPDelayProbe(log, c.registry, c.tracker, cfg.LLDPEmitPeriod, of.OnDemandRoutineRunner{})
	c.fuse = measure.NewDelayFuser(log, c.echo, c.lldp, c.tracker)

	c.stats = measure.NewPortStatsCollector(log, c.registry, c.tracker, cfg.StatsCollectPeriod, cfg.PortStatHistory)
	c.stats.WithMetrics(c.metrics)
	c.bw = measure.NewBandwidthEstimator(log, c.stats, c.catalog, c.tracker)
	c.loss = measure.NewLossEstimator(log, c.stats, c.tracker)

	c.engine = routing.NewPathEngine(log, c.tracker)
	c.engine.WithMetrics(c.metrics)

	if cfg.PathsFile != "" {
		oracle, err := routing.LoadPathOracle(cfg.PathsFile)
		if err != nil {
			log.Warnw("failed to load persisted-path oracle, falling back to live planning", "path", cfg.PathsFile, "error", err)
		}
		c.oracle = oracle
		c.engine.WithPathOracle(c.oracle)
	}

	c.locator = flowctl.NewHostLocator()
	c.installer = flowctl.NewFlowInstaller(log, c.registry, c.tracker, c.locator)
	c.installer.WithMetrics(c.metrics)

	c.router = flowctl.NewPacketInRouter(log, c.registry, c.locator, c.installer, c.engine)
	c.router.SetPolicy(routingPolicyOf(cfg.DefaultPolicy))

	return c
}

func routingPolicyOf(p config.Policy) routing.Policy {
	switch p {
	case config.PolicyDelay:
		return routing.PolicyDelay
	case config.PolicyBandwidth:
		return routing.PolicyBandwidth
	case config.PolicyLoss:
		return routing.PolicyLoss
	default:
		return routing.PolicyHop
	}
}

// multipartDemux dispatches of.TypeMultipartReply messages to the
// catalog or stats collector depending on the reply's declared type,
// since both ride the same OpenFlow message type.
type multipartDemux struct {
	log      *zap.SugaredLogger
	registry *topo.SwitchRegistry
	catalog  *topo.PortCatalog
	stats    *measure.PortStatsCollector
}

func (d *multipartDemux) Serve(rw of.ResponseWriter, req *of.Request) {
	dpid, ok := d.registry.LookupByConn(rw.Conn())
	if !ok {
		return
	}

	var reply ofp.MultipartReply
	if _, err := reply.ReadFrom(req.Body); err != nil {
		d.log.Warnw("failed to parse multipart reply header", "error", err)
		return
	}

	switch reply.Type {
	case ofp.MultipartTypePortDescription:
		var ports ofp.Ports
		if _, err := ports.ReadFrom(req.Body); err != nil {
			d.log.Warnw("failed to parse port description reply", "error", err)
			return
		}
		d.catalog.ApplyPortDescription(dpid, ports)

	case ofp.MultipartTypePortStats:
		var stats ofp.PortStatsList
		if _, err := stats.ReadFrom(req.Body); err != nil {
			d.log.Warnw("failed to parse port stats reply", "error", err)
			return
		}
		d.stats.ApplyPortStats(dpid, stats)
	}
}

// registerHandlers wires every component's of.Handler against mux by
// message type.
func (c *controller) registerHandlers(mux *of.TypeMux) {
	mux.Handle(of.TypeHello, topo.NewHandshakeHandler())
	mux.Handle(of.TypeFeaturesReply, c.registry)
	mux.Handle(of.TypeEchoRequest, ofputil.EchoHandler(c.log, nil))
	mux.Handle(of.TypeEchoReply, c.echo)
	mux.Handle(of.TypePortStatus, c.catalog)
	mux.Handle(of.TypeMultipartReply, &multipartDemux{
		log: c.log, registry: c.registry, catalog: c.catalog, stats: c.stats,
	})
	mux.Handle(of.TypePacketIn, packetInFanout{lldp: c.lldp, router: c.router})
}

// packetInFanout feeds every packet-in to both the LLDP link-discovery
// probe and the host-location/flow-installation router. Request.Body
// can only be read once, so the raw bytes are buffered up front and
// replayed into each handler's own copy.
type packetInFanout struct {
	lldp   *measure.LLDPDelayProbe
	router *flowctl.PacketInRouter
}

func (f packetInFanout) Serve(rw of.ResponseWriter, req *of.Request) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return
	}

	f.lldp.Serve(rw, &of.Request{Body: bytes.NewReader(raw)})
	f.router.Serve(rw, &of.Request{Body: bytes.NewReader(raw)})
}

func newRunCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the controller and serve OpenFlow connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			log := newLogger(cfg.LogLevel)
			defer log.Sync()

			c := newController(cfg, log)

			mux := of.NewTypeMux()
			c.registerHandlers(mux)

			srv := &of.Server{Addr: cfg.ListenAddr, Handler: mux}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopRefresh := make(chan struct{})
			go c.runRefreshLoop(stopRefresh)

			if cfg.MetricsAddr != "" {
				go func() {
					log.Infow("serving metrics", "addr", cfg.MetricsAddr)
					http.Handle("/metrics", c.metrics.Handler())
					if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
						log.Warnw("metrics server stopped", "error", err)
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infow("listening for switch connections", "addr", cfg.ListenAddr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				close(stopRefresh)
				return nil
			case err := <-errCh:
				close(stopRefresh)
				return err
			}
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	return cmd
}

// runRefreshLoop periodically recomputes delay/bandwidth/loss overlays
// from the latest probe and counter samples.
func (c *controller) runRefreshLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.DelayCollectPeriod)
	defer ticker.Stop()

	go c.echo.Run(stop)
	go c.stats.Run(stop)
	go c.lldp.RunEmit(stop, c.catalog)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.oracle != nil {
				if err := c.oracle.Reload(c.cfg.PathsFile); err != nil {
					c.log.Warnw("failed to reload persisted-path oracle, keeping prior table", "path", c.cfg.PathsFile, "error", err)
				}
			}

			if !c.tracker.Stable() {
				continue
			}
			c.fuse.Refresh()
			c.bw.Refresh()
			c.loss.Refresh()
		}
	}
}

func newRouteCommand() *cobra.Command {
	var policy string
	var src, dst uint64

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Compute the path PathEngine selects between two datapaths on a newly built controller; no running controller is contacted, so the topology starts empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			log := newLogger(cfg.LogLevel)
			defer log.Sync()

			c := newController(cfg, log)

			p := routingPolicyOf(config.Policy(policy))
			path, err := c.engine.Route(topo.DatapathId(src), topo.DatapathId(dst), p)
			if err != nil {
				return err
			}

			fmt.Println(path)
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "hop", "routing policy: hop, delay, bandwidth, loss")
	cmd.Flags().Uint64Var(&src, "src", 0, "source datapath ID")
	cmd.Flags().Uint64Var(&dst, "dst", 0, "destination datapath ID")
	return cmd
}
