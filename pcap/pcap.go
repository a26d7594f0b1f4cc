/*
Package pcap records the frames a switch transmits into pcap captures,
one capture per port.
*/
package pcap

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"k8s.io/klog/v2"

	"github.com/jackyang74/oftest"
)

const snaplen = 65536

// Recorder is a Dataplane that copies every frame sent to a captured port
// into that port's capture before handing it to the wrapped Dataplane.
type Recorder struct {
	inner oftest.Dataplane
	now   func() time.Time

	lock     sync.Mutex
	captures map[uint32]*pcapgo.Writer
}

var _ oftest.Dataplane = (*Recorder)(nil)

func NewRecorder(inner oftest.Dataplane) *Recorder {
	return &Recorder{
		inner:    inner,
		now:      time.Now,
		captures: make(map[uint32]*pcapgo.Writer),
	}
}

// Capture starts recording port into w, writing the file header first.
// A later call for the same port replaces the capture.
func (r *Recorder) Capture(port uint32, w io.Writer) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("capture port %d: %w", port, err)
	}
	r.lock.Lock()
	r.captures[port] = pw
	r.lock.Unlock()
	return nil
}

func (r *Recorder) SendToPort(port uint32, data []byte) error {
	r.lock.Lock()
	if pw, ok := r.captures[port]; ok {
		length := len(data)
		if length > snaplen {
			length = snaplen
		}
		err := pw.WritePacket(gopacket.CaptureInfo{
			Timestamp:     r.now(),
			CaptureLength: length,
			Length:        len(data),
		}, data[:length])
		if err != nil {
			klog.V(2).InfoS("Capture write failed, port no longer recorded", "port", port, "err", err)
			delete(r.captures, port)
		}
	}
	r.lock.Unlock()
	return r.inner.SendToPort(port, data)
}

func (r *Recorder) ReceiveFromPort(ctx context.Context) (uint32, []byte, error) {
	return r.inner.ReceiveFromPort(ctx)
}
