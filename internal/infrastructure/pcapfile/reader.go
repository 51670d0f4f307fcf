// Package pcapfile turns packet captures into flow records.
package pcapfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/pkg/logger"
)

// DefaultIdleTimeout closes a flow that has seen no packet for this long
const DefaultIdleTimeout = 60 * time.Second

// Options configures packet aggregation
type Options struct {
	IdleTimeout time.Duration

	// Observer metadata stamped on every record, used for host naming
	ObserverHostname string
	ObserverIPs      []string
}

// Stats counts what a capture contained
type Stats struct {
	Packets int
	Skipped int
	Flows   int
}

// Reader aggregates packets into flow records keyed by 5-tuple. Packets
// travelling in the reverse direction belong to the flow of the host that
// sent the first packet. A flow idle for longer than the idle timeout ends
// and the next packet starts a new one.
type Reader struct {
	opts   Options
	logger *logger.Logger
}

// NewReader creates a capture reader
func NewReader(opts Options, log *logger.Logger) *Reader {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Reader{opts: opts, logger: log.WithComponent("pcap")}
}

type flowKey struct {
	src, dst     string
	sport, dport uint16
	transport    string
}

func (k flowKey) reverse() flowKey {
	return flowKey{src: k.dst, dst: k.src, sport: k.dport, dport: k.sport, transport: k.transport}
}

type flow struct {
	key      flowKey
	ports    bool
	start    time.Time
	lastSeen time.Time
}

// ReadFile reads a pcap file
func (r *Reader) ReadFile(path string) ([]models.FlowRecord, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	records, stats, err := r.Read(f)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, stats, nil
}

// Read aggregates the packets of a pcap stream. Records are ordered by start.
func (r *Reader) Read(src io.Reader) ([]models.FlowRecord, Stats, error) {
	pr, err := pcapgo.NewReader(src)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("invalid capture header: %w", err)
	}

	source := gopacket.NewPacketSource(pr, pr.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	var (
		stats   Stats
		active  = make(map[flowKey]*flow)
		records []models.FlowRecord
	)
	emit := func(f *flow) {
		records = append(records, r.record(f))
	}

	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		key, ports, ok := packetKey(packet)
		if !ok {
			stats.Skipped++
			continue
		}
		ts := packet.Metadata().Timestamp.UTC()

		f := active[key]
		if f == nil {
			f = active[key.reverse()]
		}
		if f != nil && ts.Sub(f.lastSeen) > r.opts.IdleTimeout {
			emit(f)
			delete(active, f.key)
			f = nil
		}
		if f == nil {
			f = &flow{key: key, ports: ports, start: ts}
			active[key] = f
		}
		if ts.After(f.lastSeen) {
			f.lastSeen = ts
		}
	}

	for _, f := range active {
		emit(f)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Start.Equal(records[j].Start) {
			return records[i].Start.Before(records[j].Start)
		}
		if records[i].SourceIP != records[j].SourceIP {
			return records[i].SourceIP < records[j].SourceIP
		}
		return records[i].DestinationIP < records[j].DestinationIP
	})
	stats.Flows = len(records)

	r.logger.Debug().
		Int("packets", stats.Packets).
		Int("skipped", stats.Skipped).
		Int("flows", stats.Flows).
		Msg("Capture aggregated")

	return records, stats, nil
}

func (r *Reader) record(f *flow) models.FlowRecord {
	end := f.lastSeen
	rec := models.FlowRecord{
		SourceIP:         f.key.src,
		DestinationIP:    f.key.dst,
		Transport:        f.key.transport,
		Start:            f.start,
		End:              &end,
		ObserverHostname: r.opts.ObserverHostname,
		ObserverIPs:      r.opts.ObserverIPs,
	}
	if f.ports {
		sport, dport := int(f.key.sport), int(f.key.dport)
		rec.SourcePort = &sport
		rec.DestinationPort = &dport
	}
	return rec
}

// packetKey extracts the 5-tuple of an IP packet. ports is false for
// transports without ports.
func packetKey(packet gopacket.Packet) (key flowKey, ports bool, ok bool) {
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		key.src, key.dst = ip.SrcIP.String(), ip.DstIP.String()
		key.transport = strings.ToLower(ip.Protocol.String())
	case *layers.IPv6:
		key.src, key.dst = ip.SrcIP.String(), ip.DstIP.String()
		key.transport = strings.ToLower(ip.NextHeader.String())
	default:
		return key, false, false
	}

	switch t := packet.TransportLayer().(type) {
	case *layers.TCP:
		key.sport, key.dport = uint16(t.SrcPort), uint16(t.DstPort)
		key.transport = "tcp"
		return key, true, true
	case *layers.UDP:
		key.sport, key.dport = uint16(t.SrcPort), uint16(t.DstPort)
		key.transport = "udp"
		return key, true, true
	}

	if packet.Layer(layers.LayerTypeICMPv4) != nil || packet.Layer(layers.LayerTypeICMPv6) != nil {
		key.transport = "icmp"
	}
	return key, false, true
}
