package source

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"

	"meshmap/internal/config"
	"meshmap/internal/domain"
)

// CaptureSource folds live packets from one interface into windowed flow
// batches, so machines invisible to the control plane still appear on the
// graph. Its flows carry the physical traffic class.
type CaptureSource struct {
	cfg   config.CaptureConfig
	sink  SinkFunc
	log   *zap.Logger
	flush chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCapture creates the live-capture source
func NewCapture(cfg config.CaptureConfig, sink SinkFunc, log *zap.Logger) *CaptureSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &CaptureSource{
		cfg:   cfg,
		sink:  sink,
		log:   log.Named("capture"),
		flush: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Name implements Source
func (c *CaptureSource) Name() string { return "capture" }

// Type implements Source
func (c *CaptureSource) Type() Type { return TypeStream }

// Start opens the device and begins the capture loop
func (c *CaptureSource) Start(ctx context.Context) error {
	snapLen := int32(c.cfg.SnapLen)
	if snapLen <= 0 {
		snapLen = 1600
	}

	handle, err := pcap.OpenLive(c.cfg.Interface, snapLen, c.cfg.Promisc, 5*time.Second)
	if err != nil {
		return fmt.Errorf("capture source: open %s: %w", c.cfg.Interface, err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, handle)
	return nil
}

// Stop shuts down the capture loop and closes the device
func (c *CaptureSource) Stop() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

// Sync flushes the current window early instead of waiting for the ticker
func (c *CaptureSource) Sync(ctx context.Context) error {
	select {
	case c.flush <- struct{}{}:
	default:
	}
	return nil
}

func (c *CaptureSource) run(ctx context.Context, handle *pcap.Handle) {
	defer close(c.done)
	defer handle.Close()

	window := c.cfg.Window.Duration()
	if window <= 0 {
		window = 10 * time.Second
	}

	dec := newDecoder()
	agg := newAggregator(time.Now().UTC())
	packets := gopacket.NewPacketSource(handle, handle.LinkType()).Packets()

	ticker := time.NewTicker(window)
	defer ticker.Stop()

	lastEmpty := false
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			if src, dst, proto, ok := dec.flow(pkt.Data()); ok {
				agg.add(src, dst, proto, len(pkt.Data()))
			}
		case <-ticker.C:
			lastEmpty = c.emit(agg, lastEmpty)
		case <-c.flush:
			lastEmpty = c.emit(agg, lastEmpty)
		}
	}
}

// emit delivers the window's batch. An empty window is delivered once, to
// clear the previous batch downstream, and then suppressed until traffic
// returns.
func (c *CaptureSource) emit(agg *aggregator, lastEmpty bool) bool {
	batch := agg.flush(c.Name(), time.Now().UTC())
	if len(batch.Records) == 0 {
		if !lastEmpty && c.sink != nil {
			c.sink(batch)
		}
		return true
	}

	if c.sink != nil {
		c.sink(batch)
	}
	c.log.Debug("capture window flushed",
		zap.Int("flows", len(batch.Records)),
		zap.Time("start", batch.Start),
		zap.Time("end", batch.End),
	)
	return false
}

// flowKey identifies one directed flow within a capture window
type flowKey struct {
	src   string
	dst   string
	proto int
}

// aggregator folds decoded packets into per-window flow records, the live
// equivalent of one network log's traffic array
type aggregator struct {
	flows map[flowKey]*domain.FlowRecord
	start time.Time
}

func newAggregator(start time.Time) *aggregator {
	return &aggregator{
		flows: make(map[flowKey]*domain.FlowRecord),
		start: start,
	}
}

// add counts one packet against its flow
func (a *aggregator) add(src, dst string, proto, length int) {
	key := flowKey{src: src, dst: dst, proto: proto}
	rec, ok := a.flows[key]
	if !ok {
		rec = &domain.FlowRecord{
			Src:   src,
			Dst:   dst,
			Proto: proto,
			Class: domain.TrafficPhysical,
		}
		a.flows[key] = rec
	}
	rec.TxBytes += int64(length)
	rec.TxPackets++
}

func (a *aggregator) empty() bool {
	return len(a.flows) == 0
}

// flush returns the window's batch and resets the aggregator, with the
// flushed window's end becoming the next window's start
func (a *aggregator) flush(source string, end time.Time) domain.LogBatch {
	batch := domain.LogBatch{
		Source:  source,
		Start:   a.start,
		End:     end,
		Records: make([]domain.FlowRecord, 0, len(a.flows)),
	}
	for _, rec := range a.flows {
		batch.Records = append(batch.Records, *rec)
	}
	a.flows = make(map[flowKey]*domain.FlowRecord)
	a.start = end
	return batch
}

// decoder reuses one DecodingLayerParser and its layer buffers across
// packets
type decoder struct {
	eth     layers.Ethernet
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

func newDecoder() *decoder {
	d := &decoder{decoded: make([]gopacket.LayerType, 0, 5)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.eth, &d.ip4, &d.ip6, &d.tcp, &d.udp)
	return d
}

// flow extracts the flow tuple from one raw frame. ok is false for frames
// without an IP layer. A decode error past the IP layer still leaves the
// already-decoded prefix usable.
func (d *decoder) flow(data []byte) (src, dst string, proto int, ok bool) {
	d.decoded = d.decoded[:0]
	_ = d.parser.DecodeLayers(data, &d.decoded)

	var srcIP, dstIP string
	var srcPort, dstPort int
	for _, layerType := range d.decoded {
		switch layerType {
		case layers.LayerTypeIPv4:
			srcIP = d.ip4.SrcIP.String()
			dstIP = d.ip4.DstIP.String()
			proto = int(d.ip4.Protocol)
		case layers.LayerTypeIPv6:
			srcIP = d.ip6.SrcIP.String()
			dstIP = d.ip6.DstIP.String()
			proto = int(d.ip6.NextHeader)
		case layers.LayerTypeTCP:
			srcPort = int(d.tcp.SrcPort)
			dstPort = int(d.tcp.DstPort)
		case layers.LayerTypeUDP:
			srcPort = int(d.udp.SrcPort)
			dstPort = int(d.udp.DstPort)
		}
	}

	if srcIP == "" {
		return "", "", 0, false
	}
	return compositeAddr(srcIP, srcPort), compositeAddr(dstIP, dstPort), proto, true
}

// compositeAddr joins an IP and port the way flow-log addresses carry them
func compositeAddr(ip string, port int) string {
	if port == 0 {
		return ip
	}
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
