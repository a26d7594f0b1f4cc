package main

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"k8s.io/klog/v2"

	"github.com/jackyang74/oftest/ofp4"
	"github.com/jackyang74/oftest/session"
)

// connect reaches a switch: it dials addr when given, otherwise it waits
// on listen for the switch to connect. The session is established on
// return.
func connect(ctx context.Context, addr, listen string, timeout time.Duration) (*session.Session, error) {
	var conn net.Conn
	if addr != "" {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		conn = c
	} else {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", listen)
		if err != nil {
			return nil, err
		}
		klog.InfoS("Waiting for switch", "address", l.Addr())
		stop := context.AfterFunc(ctx, func() { l.Close() })
		c, err := l.Accept()
		stop()
		l.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		conn = c
	}
	sess := session.New(conn, session.Options{})
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sess.Handshake(hctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("handshake with %s: %w", conn.RemoteAddr(), err)
	}
	klog.V(2).InfoS("Switch connected", "address", conn.RemoteAddr(), "version", sess.Version())
	return sess, nil
}

type prober struct {
	sess    *session.Session
	timeout time.Duration
	out     io.Writer
}

func (p *prober) request(ctx context.Context, mtype uint8, body encoding.BinaryMarshaler) (*ofp4.Message, error) {
	return p.sess.Transact(ctx, &ofp4.Message{Header: ofp4.Header{Type: mtype}, Body: body}, p.timeout)
}

func (p *prober) multipart(ctx context.Context, mptype uint16, body encoding.BinaryMarshaler) (*ofp4.MultipartReply, error) {
	reply, err := p.request(ctx, ofp4.OFPT_MULTIPART_REQUEST, &ofp4.MultipartRequest{Type: mptype, Body: body})
	if err != nil {
		return nil, err
	}
	mp, ok := reply.Body.(*ofp4.MultipartReply)
	if !ok || mp.Type != mptype {
		return nil, fmt.Errorf("multipart %d answered with %s", mptype, reply)
	}
	return mp, nil
}

func (p *prober) desc(ctx context.Context) error {
	mp, err := p.multipart(ctx, ofp4.OFPMP_DESC, nil)
	if err != nil {
		return err
	}
	desc, ok := mp.Body.(*ofp4.Desc)
	if !ok {
		return errors.New("desc reply without body")
	}
	fmt.Fprintf(p.out, "manufacturer: %s\nhardware: %s\nsoftware: %s\nserial: %s\ndatapath: %s\n",
		desc.MfrDesc, desc.HwDesc, desc.SwDesc, desc.SerialNum, desc.DpDesc)
	return nil
}

func (p *prober) features(ctx context.Context) (*ofp4.SwitchFeatures, error) {
	reply, err := p.request(ctx, ofp4.OFPT_FEATURES_REQUEST, nil)
	if err != nil {
		return nil, err
	}
	features, ok := reply.Body.(*ofp4.SwitchFeatures)
	if !ok {
		return nil, fmt.Errorf("features request answered with %s", reply)
	}
	return features, nil
}

func (p *prober) printFeatures(ctx context.Context) error {
	features, err := p.features(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "datapath_id=0x%016x n_tables=%d n_buffers=%d capabilities=0x%x\n",
		features.DatapathId, features.NTables, features.NBuffers, features.Capabilities)
	return nil
}

func flowRequest(filter string) (*ofp4.FlowStatsRequest, error) {
	req := &ofp4.FlowStatsRequest{
		TableId:  ofp4.OFPTT_ALL,
		OutPort:  ofp4.OFPP_ANY,
		OutGroup: ofp4.OFPG_ANY,
		Match:    ofp4.NewMatch(),
	}
	if filter == "" {
		return req, nil
	}
	fm, err := ofp4.ParseFlow(filter)
	if err != nil {
		return nil, err
	}
	if strings.Contains(filter, "table=") {
		req.TableId = fm.TableId
	}
	req.OutPort = fm.OutPort
	req.Cookie = fm.Cookie
	if fm.Cookie != 0 {
		req.CookieMask = ^uint64(0)
	}
	req.Match = fm.Match
	return req, nil
}

func (p *prober) flows(ctx context.Context, filter string) ([]*ofp4.FlowStats, error) {
	req, err := flowRequest(filter)
	if err != nil {
		return nil, err
	}
	mp, err := p.multipart(ctx, ofp4.OFPMP_FLOW, req)
	if err != nil {
		return nil, err
	}
	array, _ := mp.Body.(ofp4.Array)
	var flows []*ofp4.FlowStats
	for _, elem := range array {
		if flow, ok := elem.(*ofp4.FlowStats); ok {
			flows = append(flows, flow)
		}
	}
	return flows, nil
}

func (p *prober) dumpFlows(ctx context.Context, filter string) error {
	flows, err := p.flows(ctx, filter)
	if err != nil {
		return err
	}
	for _, flow := range flows {
		fmt.Fprintln(p.out, flow)
	}
	return nil
}

func (p *prober) dumpTables(ctx context.Context) error {
	mp, err := p.multipart(ctx, ofp4.OFPMP_TABLE, nil)
	if err != nil {
		return err
	}
	array, _ := mp.Body.(ofp4.Array)
	for _, elem := range array {
		if t, ok := elem.(*ofp4.TableStats); ok {
			fmt.Fprintf(p.out, "table=%d active=%d lookup=%d matched=%d\n", t.TableId, t.ActiveCount, t.LookupCount, t.MatchedCount)
		}
	}
	return nil
}

func (p *prober) dumpPorts(ctx context.Context) error {
	mp, err := p.multipart(ctx, ofp4.OFPMP_PORT_DESC, nil)
	if err != nil {
		return err
	}
	names := make(map[uint32]string)
	array, _ := mp.Body.(ofp4.Array)
	for _, elem := range array {
		if port, ok := elem.(*ofp4.Port); ok {
			names[port.PortNo] = port.Name
		}
	}
	mp, err = p.multipart(ctx, ofp4.OFPMP_PORT_STATS, &ofp4.PortStatsRequest{PortNo: ofp4.OFPP_ANY})
	if err != nil {
		return err
	}
	array, _ = mp.Body.(ofp4.Array)
	for _, elem := range array {
		if s, ok := elem.(*ofp4.PortStats); ok {
			fmt.Fprintf(p.out, "port=%d name=%s rx_packets=%d rx_bytes=%d rx_dropped=%d tx_packets=%d tx_bytes=%d tx_dropped=%d\n",
				s.PortNo, names[s.PortNo], s.RxPackets, s.RxBytes, s.RxDropped, s.TxPackets, s.TxBytes, s.TxDropped)
		}
	}
	return nil
}

// flowModXid tags flow-mods so their error replies can be told apart.
const flowModXid = 0xf10f

// flowMod sends a flow-mod and confirms it with a barrier, so an error
// reply for it arrives before the call returns.
func (p *prober) flowMod(ctx context.Context, fm ofp4.FlowMod) error {
	sub := p.sess.Subscribe(ofp4.OFPT_ERROR)
	defer p.sess.Unsubscribe(sub)
	msg := &ofp4.Message{Header: ofp4.Header{Type: ofp4.OFPT_FLOW_MOD, Xid: flowModXid}, Body: &fm}
	if err := p.sess.Send(msg); err != nil {
		return err
	}
	if err := p.sess.Barrier(ctx, p.timeout); err != nil {
		return err
	}
	for {
		select {
		case reply, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
			if reply.Xid != msg.Xid {
				continue
			}
			if e, ok := reply.Body.(*ofp4.Error); ok {
				return fmt.Errorf("flow-mod rejected: %w", *e)
			}
		default:
			return nil
		}
	}
}

func (p *prober) addFlow(ctx context.Context, txt string) error {
	fm, err := ofp4.ParseFlow(txt)
	if err != nil {
		return err
	}
	fm.Command = ofp4.OFPFC_ADD
	return p.flowMod(ctx, fm)
}

func (p *prober) delFlows(ctx context.Context, txt string) error {
	fm, err := ofp4.ParseFlow(txt)
	if err != nil {
		return err
	}
	fm.Command = ofp4.OFPFC_DELETE
	if !strings.Contains(txt, "table=") {
		fm.TableId = ofp4.OFPTT_ALL
	}
	if fm.Cookie != 0 {
		fm.CookieMask = ^uint64(0)
	}
	return p.flowMod(ctx, fm)
}

// watch prints asynchronous messages until ctx is done or the switch
// goes away.
func (p *prober) watch(ctx context.Context) error {
	sub := p.sess.Subscribe(ofp4.OFPT_PACKET_IN, ofp4.OFPT_FLOW_REMOVED, ofp4.OFPT_PORT_STATUS)
	defer p.sess.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
			p.printAsync(msg)
		}
	}
}

func (p *prober) printAsync(msg *ofp4.Message) {
	switch body := msg.Body.(type) {
	case *ofp4.PacketIn:
		fields := []string{fmt.Sprintf("packet_in table=%d cookie=0x%x total_len=%d", body.TableId, body.Cookie, body.TotalLen)}
		if len(body.Match.OxmFields) > 0 {
			fields = append(fields, body.Match.OxmFields.String())
		}
		pkt := gopacket.NewPacket(body.Data, layers.LayerTypeEthernet, gopacket.Lazy)
		var names []string
		for _, layer := range pkt.Layers() {
			names = append(names, layer.LayerType().String())
		}
		fields = append(fields, strings.Join(names, "/"))
		fmt.Fprintln(p.out, strings.Join(fields, " "))
	case *ofp4.FlowRemoved:
		fmt.Fprintf(p.out, "flow_removed table=%d priority=%d cookie=0x%x reason=%d n_packets=%d\n",
			body.TableId, body.Priority, body.Cookie, body.Reason, body.PacketCount)
	case *ofp4.PortStatus:
		fmt.Fprintf(p.out, "port_status port=%d name=%s reason=%d state=0x%x\n",
			body.Desc.PortNo, body.Desc.Name, body.Reason, body.Desc.State)
	default:
		fmt.Fprintln(p.out, msg)
	}
}
