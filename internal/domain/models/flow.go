package models

import (
	"time"
)

// FlowRecord is one raw connection event as delivered by a flow record store
type FlowRecord struct {
	SourceIP        string     `json:"source_ip" yaml:"source_ip" validate:"required,max=255"`
	SourcePort      *int       `json:"source_port,omitempty" yaml:"source_port" validate:"omitempty,min=0,max=65535"`
	DestinationIP   string     `json:"destination_ip" yaml:"destination_ip" validate:"required,max=255"`
	DestinationPort *int       `json:"destination_port,omitempty" yaml:"destination_port" validate:"omitempty,min=0,max=65535"`
	Transport       string     `json:"transport" yaml:"transport" validate:"max=32"`
	Start           time.Time  `json:"start" yaml:"start"`
	End             *time.Time `json:"end,omitempty" yaml:"end"`

	// Observer and process metadata, used for host naming and ingest filtering
	ObserverHostname  string   `json:"observer_hostname,omitempty" yaml:"observer_hostname"`
	ObserverIPs       []string `json:"observer_ips,omitempty" yaml:"observer_ips"`
	ObserverGeoName   string   `json:"observer_geo_name,omitempty" yaml:"observer_geo_name"`
	ProcessName       string   `json:"process_name,omitempty" yaml:"process_name"`
	ProcessExecutable string   `json:"process_executable,omitempty" yaml:"process_executable"`
	UserAgent         string   `json:"user_agent,omitempty" yaml:"user_agent"`
}

// HostnameFor returns the observer hostname when addr is one of the
// observer's addresses
func (r *FlowRecord) HostnameFor(addr string) string {
	if r.ObserverHostname == "" {
		return ""
	}
	for _, ip := range r.ObserverIPs {
		if ip == addr {
			return r.ObserverHostname
		}
	}
	return ""
}

// PivotRecord is a connection tracked at the VPN gateway: the actor's
// address, the port pair it used and the host it entered the network through
type PivotRecord struct {
	ActorIP         string    `json:"actor_ip" yaml:"actor_ip"`
	Destination     string    `json:"destination" yaml:"destination"`
	Target          string    `json:"target" yaml:"target"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	Transport       string    `json:"transport" yaml:"transport"`
	SourcePort      *int      `json:"source_port,omitempty" yaml:"source_port"`
	DestinationPort *int      `json:"destination_port,omitempty" yaml:"destination_port"`
}

// Actor is someone whose traffic gets attributed
type Actor struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	ID    string `json:"id" yaml:"id"`
	World string `json:"world,omitempty" yaml:"world"`
	VPNIP string `json:"vpn_ip" yaml:"vpn_ip" validate:"omitempty,ip"`
}

// GatewayHostname is the conntrack agent hostname of the actor's world
func (a Actor) GatewayHostname() string {
	if a.World == "" {
		return ""
	}
	return a.World + "-vpn"
}
