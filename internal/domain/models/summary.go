package models

import "time"

// SummaryNode is a host of a summary graph with the number of chain parts
// touching it
type SummaryNode struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// SummaryEdge aggregates every chain part between two hosts
type SummaryEdge struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	// Ports are the distinct well-known service ports seen as destination port
	Ports []int `json:"ports"`
	// Date is the earliest part start
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
	// Attr is the actor address the chains were attributed to
	Attr string `json:"attr"`
}

// SummaryGraph is the condensed view of an actor's reconstructed chains
type SummaryGraph struct {
	Nodes []SummaryNode `json:"nodes"`
	Edges []SummaryEdge `json:"edges"`
}
