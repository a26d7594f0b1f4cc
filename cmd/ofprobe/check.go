package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jackyang74/oftest/ofp4"
)

// probeCookie marks the entries the checks install.
const probeCookie = 0x4f46

type check struct {
	name string
	run  func(ctx context.Context) error
}

func (p *prober) checks() []check {
	return []check{
		{"echo", p.checkEcho},
		{"features", p.checkFeatures},
		{"barrier", func(ctx context.Context) error { return p.sess.Barrier(ctx, p.timeout) }},
		{"flow lifecycle", p.checkFlowLifecycle},
		{"bad table rejected", p.checkBadTable},
		{"unknown multipart rejected", p.checkBadMultipart},
	}
}

// check runs every check, prints one line per check and fails when any
// of them did.
func (p *prober) check(ctx context.Context) error {
	checks := p.checks()
	failed := 0
	for _, c := range checks {
		if err := c.run(ctx); err != nil {
			failed++
			fmt.Fprintf(p.out, "FAIL %s: %v\n", c.name, err)
			continue
		}
		fmt.Fprintf(p.out, "PASS %s\n", c.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

func (p *prober) checkEcho(ctx context.Context) error {
	payload := ofp4.Bytes("oftest")
	reply, err := p.request(ctx, ofp4.OFPT_ECHO_REQUEST, payload)
	if err != nil {
		return err
	}
	got, _ := reply.Body.(ofp4.Bytes)
	if reply.Type != ofp4.OFPT_ECHO_REPLY || !bytes.Equal(got, payload) {
		return fmt.Errorf("echo answered with %s %q", reply, []byte(got))
	}
	return nil
}

func (p *prober) checkFeatures(ctx context.Context) error {
	features, err := p.features(ctx)
	if err != nil {
		return err
	}
	if features.NTables == 0 {
		return errors.New("switch reports no tables")
	}
	return nil
}

func (p *prober) checkFlowLifecycle(ctx context.Context) error {
	flow := fmt.Sprintf("table=0,priority=4242,cookie=0x%x,eth_type=0x88b5,@apply,output=controller", probeCookie)
	filter := fmt.Sprintf("table=0,cookie=0x%x", probeCookie)
	if err := p.addFlow(ctx, flow); err != nil {
		return err
	}
	flows, err := p.flows(ctx, filter)
	if err != nil {
		return err
	}
	if len(flows) != 1 || flows[0].Priority != 4242 {
		return fmt.Errorf("installed entry reads back as %v", flows)
	}
	if err := p.delFlows(ctx, filter); err != nil {
		return err
	}
	if flows, err = p.flows(ctx, filter); err != nil {
		return err
	}
	if len(flows) != 0 {
		return fmt.Errorf("%d entries left after delete", len(flows))
	}
	return nil
}

func (p *prober) checkBadTable(ctx context.Context) error {
	features, err := p.features(ctx)
	if err != nil {
		return err
	}
	if int(features.NTables) > ofp4.OFPTT_MAX {
		return nil
	}
	err = p.addFlow(ctx, fmt.Sprintf("table=%d,priority=1,cookie=0x%x", ofp4.OFPTT_MAX, probeCookie))
	return expectError(err, ofp4.OFPET_FLOW_MOD_FAILED, ofp4.OFPFMFC_BAD_TABLE_ID)
}

func (p *prober) checkBadMultipart(ctx context.Context) error {
	_, err := p.multipart(ctx, 0xfffe, nil)
	return expectError(err, ofp4.OFPET_BAD_REQUEST, ofp4.OFPBRC_BAD_MULTIPART)
}

func expectError(err error, etype, code uint16) error {
	var ofpErr ofp4.Error
	if !errors.As(err, &ofpErr) {
		return fmt.Errorf("expected error %d/%d, got %v", etype, code, err)
	}
	if ofpErr.Type != etype || ofpErr.Code != code {
		return fmt.Errorf("expected error %d/%d, got %d/%d", etype, code, ofpErr.Type, ofpErr.Code)
	}
	return nil
}
