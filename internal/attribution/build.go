package attribution

import (
	"strconv"
	"strings"

	"flowattr-lab/internal/domain/models"
)

// HostNamer maps a raw address to the host ID used in the graph
type HostNamer interface {
	Name(addr string) string
}

// PrefixNamer renames addresses under AddressPrefix to NamePrefix followed by
// the last octet, e.g. 192.168.0.12 -> w1-s12. Other addresses keep their value.
type PrefixNamer struct {
	AddressPrefix string
	NamePrefix    string
}

func (n PrefixNamer) Name(addr string) string {
	if n.AddressPrefix == "" || !strings.HasPrefix(addr, n.AddressPrefix) {
		return addr
	}
	octet, err := strconv.Atoi(addr[len(n.AddressPrefix):])
	if err != nil || octet < 0 || octet > 255 {
		return addr
	}
	return n.NamePrefix + strconv.Itoa(octet)
}

type identityNamer struct{}

func (identityNamer) Name(addr string) string { return addr }

// BuildOptions tune graph construction
type BuildOptions struct {
	Namer HostNamer
	// OnSkip is called for every record that could not be added
	OnSkip func(rec models.FlowRecord, err error)
}

// BuildStats describes a graph construction
type BuildStats struct {
	Records int `json:"records"`
	Edges   int `json:"edges"`
	Skipped int `json:"skipped"`
}

// BuildGraph materializes flow records into a new graph. Invalid records are
// skipped and counted; they never abort the build.
func BuildGraph(records []models.FlowRecord, opts BuildOptions) (*Graph, BuildStats) {
	g := NewGraph()
	stats := AddRecords(g, records, opts)
	return g, stats
}

// AddRecords ingests records into an existing graph
func AddRecords(g *Graph, records []models.FlowRecord, opts BuildOptions) BuildStats {
	namer := opts.Namer
	if namer == nil {
		namer = identityNamer{}
	}

	stats := BuildStats{Records: len(records)}
	for i := range records {
		if err := AddRecord(g, &records[i], namer); err != nil {
			stats.Skipped++
			if opts.OnSkip != nil {
				opts.OnSkip(records[i], err)
			}
			continue
		}
		stats.Edges++
	}
	return stats
}

// AddRecord validates one record and adds its hosts and edge
func AddRecord(g *Graph, rec *models.FlowRecord, namer HostNamer) error {
	if err := models.ValidateFlowRecord(rec); err != nil {
		return err
	}

	src := namer.Name(rec.SourceIP)
	dst := namer.Name(rec.DestinationIP)
	g.AddHost(src, rec.HostnameFor(rec.SourceIP))
	g.AddHost(dst, rec.HostnameFor(rec.DestinationIP))

	_, err := g.AddFlowEdge(src, dst, ParseTransport(rec.Transport), rec.SourcePort, rec.DestinationPort, rec.Start, rec.End)
	return err
}
