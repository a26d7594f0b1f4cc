// Package config loads the YAML configuration shared by the switch
// emulator and the probe.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/ofp4sw"
)

type Config struct {
	Switch     Switch     `yaml:"switch"`
	Controller Controller `yaml:"controller"`
	Probe      Probe      `yaml:"probe"`
	Metrics    Metrics    `yaml:"metrics"`
}

type Switch struct {
	DatapathID     uint64        `yaml:"datapath_id"`
	Tables         int           `yaml:"tables"`
	TableSize      int           `yaml:"table_size"`
	MissPolicy     string        `yaml:"miss_policy"`
	MissSendLen    uint16        `yaml:"miss_send_len"`
	InvalidTTL     bool          `yaml:"invalid_ttl_to_controller"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
	Ports          []Port        `yaml:"ports"`
	Desc           Desc          `yaml:"desc"`
}

type Port struct {
	Number uint32 `yaml:"number"`
	Name   string `yaml:"name"`
	MAC    string `yaml:"mac"`
	// Speed in kbps, reported in the port description.
	Speed uint32 `yaml:"speed"`
	// Replay is a pcap file injected into the port once a controller is
	// connected, ReplayCount times (0 loops) at ReplayRate packets per
	// second (0 is unpaced).
	Replay      string `yaml:"replay"`
	ReplayCount int    `yaml:"replay_count"`
	ReplayRate  int    `yaml:"replay_rate"`
	// Capture is a pcap file receiving every frame the port transmits.
	Capture string `yaml:"capture"`
}

type Desc struct {
	Manufacturer string `yaml:"manufacturer"`
	Hardware     string `yaml:"hardware"`
	Software     string `yaml:"software"`
	Serial       string `yaml:"serial"`
	Datapath     string `yaml:"datapath"`
}

// Controller is where the emulator finds its controller: it either dials
// Address or listens on it.
type Controller struct {
	Address string `yaml:"address"`
	Listen  bool   `yaml:"listen"`
	// Retry is the pause between dial attempts.
	Retry            time.Duration `yaml:"retry"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

type Probe struct {
	Listen  string        `yaml:"listen"`
	Timeout time.Duration `yaml:"timeout"`
}

type Metrics struct {
	Address string `yaml:"address"`
}

const (
	MissDrop       = "drop"
	MissController = "controller"
)

func Default() *Config {
	return &Config{
		Switch: Switch{
			DatapathID:     1,
			Tables:         1,
			MissPolicy:     MissDrop,
			MissSendLen:    128,
			ExpiryInterval: time.Second,
			Desc: Desc{
				Manufacturer: "oftest",
				Hardware:     "emulated",
				Software:     "ofswitchd",
			},
		},
		Controller: Controller{
			Address:          "127.0.0.1:6653",
			Retry:            time.Second,
			HandshakeTimeout: 5 * time.Second,
		},
		Probe: Probe{
			Listen:  ":6653",
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads path over the defaults. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	s := c.Switch
	if s.Tables < 1 || s.Tables > ofp4.OFPTT_MAX+1 {
		errs = append(errs, fmt.Errorf("switch.tables %d out of range 1-%d", s.Tables, ofp4.OFPTT_MAX+1))
	}
	if s.TableSize < 0 {
		errs = append(errs, fmt.Errorf("switch.table_size %d is negative", s.TableSize))
	}
	if s.MissPolicy != MissDrop && s.MissPolicy != MissController {
		errs = append(errs, fmt.Errorf("switch.miss_policy %q is neither %q nor %q", s.MissPolicy, MissDrop, MissController))
	}
	if s.ExpiryInterval <= 0 {
		errs = append(errs, fmt.Errorf("switch.expiry_interval must be positive"))
	}
	seen := make(map[uint32]bool)
	for _, p := range s.Ports {
		if p.Number == 0 || p.Number > ofp4.OFPP_MAX {
			errs = append(errs, fmt.Errorf("switch.ports: number %d out of range", p.Number))
		}
		if seen[p.Number] {
			errs = append(errs, fmt.Errorf("switch.ports: number %d repeated", p.Number))
		}
		seen[p.Number] = true
		if p.ReplayCount < 0 || p.ReplayRate < 0 {
			errs = append(errs, fmt.Errorf("switch.ports %d: negative replay count or rate", p.Number))
		}
		if p.MAC != "" {
			if _, err := net.ParseMAC(p.MAC); err != nil {
				errs = append(errs, fmt.Errorf("switch.ports %d: %w", p.Number, err))
			}
		}
	}
	if c.Controller.Address == "" {
		errs = append(errs, errors.New("controller.address is empty"))
	}
	if c.Controller.Retry <= 0 || c.Controller.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("controller.retry and controller.handshake_timeout must be positive"))
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, errors.New("probe.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// PipelineOptions translates the switch section for ofp4sw.NewPipeline.
func (s Switch) PipelineOptions() ofp4sw.Options {
	policy := ofp4sw.MissDrop
	if s.MissPolicy == MissController {
		policy = ofp4sw.MissController
	}
	return ofp4sw.Options{
		DatapathId:             s.DatapathID,
		NumTables:              s.Tables,
		TableSize:              s.TableSize,
		MissPolicy:             policy,
		MissSendLen:            s.MissSendLen,
		InvalidTTLToController: s.InvalidTTL,
		Desc: ofp4.Desc{
			MfrDesc:   s.Desc.Manufacturer,
			HwDesc:    s.Desc.Hardware,
			SwDesc:    s.Desc.Software,
			SerialNum: s.Desc.Serial,
			DpDesc:    s.Desc.Datapath,
		},
	}
}

// PortState builds the initial state of a configured port.
func (p Port) PortState() ofp4sw.PortState {
	mac, _ := net.ParseMAC(p.MAC)
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("port%d", p.Number)
	}
	return ofp4sw.PortState{
		Name:      name,
		HwAddr:    mac,
		CurrSpeed: p.Speed,
		MaxSpeed:  p.Speed,
	}
}
