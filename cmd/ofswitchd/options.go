package main

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/jackyang74/oftest/config"
)

type options struct {
	// The path of the configuration file.
	configFile string
	controller string
	listen     bool
	datapathID uint64
	metrics    string

	config *config.Config
}

func newOptions() *options {
	return &options{}
}

// addFlags adds flags to fs and binds them to options.
func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", o.configFile, "The path to the configuration file")
	fs.StringVar(&o.controller, "controller", o.controller, "Controller address, overrides controller.address")
	fs.BoolVar(&o.listen, "listen", o.listen, "Wait for the controller on the controller address instead of dialing it")
	fs.Uint64Var(&o.datapathID, "datapath-id", o.datapathID, "Datapath id, overrides switch.datapath_id")
	fs.StringVar(&o.metrics, "metrics-address", o.metrics, "Serve Prometheus metrics on this address")
}

// complete loads the configuration and lays the flags the user set over
// it.
func (o *options) complete(fs *pflag.FlagSet, args []string) error {
	if len(args) != 0 {
		return errors.New("no arguments are supported")
	}
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if fs.Changed("controller") {
		cfg.Controller.Address = o.controller
	}
	if fs.Changed("listen") {
		cfg.Controller.Listen = o.listen
	}
	if fs.Changed("datapath-id") {
		cfg.Switch.DatapathID = o.datapathID
	}
	if fs.Changed("metrics-address") {
		cfg.Metrics.Address = o.metrics
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.config = cfg
	return nil
}
