// Command ofprobe plays the controller against an OpenFlow 1.3 switch: it
// queries state, edits flow tables, prints asynchronous messages and runs
// a short conformance check.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/jackyang74/oftest/config"
)

func main() {
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()

	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configFile string
	connect    string
	listen     string
	timeout    time.Duration
}

func newCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "ofprobe",
		Short:        "Talk to an OpenFlow 1.3 switch as its controller",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "The path to the configuration file")
	flags.StringVar(&opts.connect, "connect", "", "Dial the switch at this address instead of waiting for it")
	flags.StringVar(&opts.listen, "listen", "", "Wait for the switch on this address, overrides probe.listen")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Reply timeout, overrides probe.timeout")
	// Install log flags
	flags.AddGoFlagSet(flag.CommandLine)

	add := func(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, p *prober, args []string) error) {
		root.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(cmd, args, fn)
			},
		})
	}
	add("desc", "Print the switch description", cobra.NoArgs, func(ctx context.Context, p *prober, _ []string) error {
		return p.desc(ctx)
	})
	add("features", "Print the switch features", cobra.NoArgs, func(ctx context.Context, p *prober, _ []string) error {
		return p.printFeatures(ctx)
	})
	add("dump-flows [FILTER]", "Print flow entries, optionally filtered", cobra.MaximumNArgs(1), func(ctx context.Context, p *prober, args []string) error {
		return p.dumpFlows(ctx, firstArg(args))
	})
	add("dump-tables", "Print table counters", cobra.NoArgs, func(ctx context.Context, p *prober, _ []string) error {
		return p.dumpTables(ctx)
	})
	add("dump-ports", "Print port counters", cobra.NoArgs, func(ctx context.Context, p *prober, _ []string) error {
		return p.dumpPorts(ctx)
	})
	add("add-flow FLOW", "Install a flow entry", cobra.ExactArgs(1), func(ctx context.Context, p *prober, args []string) error {
		return p.addFlow(ctx, args[0])
	})
	add("del-flows [FILTER]", "Delete flow entries, all of them without a filter", cobra.MaximumNArgs(1), func(ctx context.Context, p *prober, args []string) error {
		return p.delFlows(ctx, firstArg(args))
	})
	add("watch", "Print packet-in, flow-removed and port-status messages", cobra.NoArgs, func(ctx context.Context, p *prober, _ []string) error {
		return p.watch(ctx)
	})
	add("check", "Run the conformance checks", cobra.NoArgs, func(ctx context.Context, p *prober, _ []string) error {
		return p.check(ctx)
	})
	return root
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func (o *options) run(cmd *cobra.Command, args []string, fn func(ctx context.Context, p *prober, args []string) error) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.listen != "" {
		cfg.Probe.Listen = o.listen
	}
	if o.timeout > 0 {
		cfg.Probe.Timeout = o.timeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sess, err := connect(ctx, o.connect, cfg.Probe.Listen, cfg.Probe.Timeout)
	if err != nil {
		return err
	}
	defer sess.Close()
	p := &prober{sess: sess, timeout: cfg.Probe.Timeout, out: cmd.OutOrStdout()}
	if err := fn(ctx, p, args); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
