// Command ofswitchd runs an emulated OpenFlow 1.3 switch against a
// controller. Frames can be replayed into its ports from pcap files and
// what it transmits can be captured the same way.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()

	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := newOptions()

	cmd := &cobra.Command{
		Use:          "ofswitchd",
		Long:         "ofswitchd emulates an OpenFlow 1.3 switch with a software pipeline.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.complete(cmd.Flags(), args); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, opts.config); err != nil {
				klog.ErrorS(err, "Switch stopped")
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	opts.addFlags(flags)
	// Install log flags
	flags.AddGoFlagSet(flag.CommandLine)
	return cmd
}
