// Package adapters is the thin boundary between the balancing core and
// its external collaborators (spec §1: "deliberately out of scope").
// It does not implement a NameService/TransferPeer/KeyManager client —
// those belong to the concrete cluster deployment — but it does own
// the small amount of glue a real CLI wires up: resolving the
// -exclude/-include host lists and building the locality oracle from a
// name service's own reports, plus documenting exactly where a real
// RPC client would be plugged in.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package adapters

import (
	"bufio"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/NVIDIA/balancer/internal/nameservice"
	"github.com/NVIDIA/balancer/internal/topology"
)

// ErrNotConfigured is returned by the connector factory when the
// caller hasn't supplied a concrete NameService connector — this repo
// implements the balancing core only; the metadata-authority client,
// the TransferPeer socket, the KeyManager, and the authentication
// layer are external collaborators per spec §1.
var ErrNotConfigured = errors.New("no concrete NameService connector configured; wire one in before running the balancer against a real cluster")

// HostFilter resolves the CLI's -exclude/-include surface: a flag value
// of the form "@<path>" reads one hostname/IP (optionally ":port") per
// line from a file; otherwise it is treated as a comma-separated list.
type HostFilter struct {
	hosts map[string]struct{}
}

// ParseHostFilter builds a HostFilter from a single -exclude or
// -include flag value. An empty value yields an empty (never-matching)
// filter.
func ParseHostFilter(value string) (HostFilter, error) {
	if value == "" {
		return HostFilter{hosts: map[string]struct{}{}}, nil
	}
	var raw []string
	if strings.HasPrefix(value, "@") {
		f, err := os.Open(value[1:])
		if err != nil {
			return HostFilter{}, errors.Wrapf(err, "open host list %s", value[1:])
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, line)
		}
		if err := sc.Err(); err != nil {
			return HostFilter{}, errors.Wrap(err, "read host list")
		}
	} else {
		raw = strings.Split(value, ",")
	}

	hosts := make(map[string]struct{}, len(raw))
	for _, h := range raw {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	return HostFilter{hosts: hosts}, nil
}

// Matches reports whether addr (a node's transfer address, host or
// host:port) matches this filter by peer hostname, IP, or hostname:port.
func (f HostFilter) Matches(addr string) bool {
	if len(f.hosts) == 0 {
		return false
	}
	if _, ok := f.hosts[addr]; ok {
		return true
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	_, ok := f.hosts[host]
	return ok
}

// FilterReports applies an exclude or include HostFilter to a raw
// report list, marking excluded nodes as Decommissioning so Classify
// skips them (§4.1 step 1, "non-excluded node").
func FilterReports(reports []nameservice.DatanodeStorageReport, exclude, include HostFilter, hasExclude, hasInclude bool) []nameservice.DatanodeStorageReport {
	if !hasExclude && !hasInclude {
		return reports
	}
	out := make([]nameservice.DatanodeStorageReport, len(reports))
	copy(out, reports)
	for i := range out {
		switch {
		case hasExclude:
			if exclude.Matches(out[i].TransferAddr) || exclude.Matches(out[i].NodeUUID) {
				out[i].Decommissioning = true
			}
		case hasInclude:
			if !include.Matches(out[i].TransferAddr) && !include.Matches(out[i].NodeUUID) {
				out[i].Decommissioning = true
			}
		}
	}
	return out
}

// BuildOracle derives a topology.Oracle from a report list's own
// rack/node-group fields. Real deployments more commonly query a
// dedicated NetworkTopology service instead; this is the degenerate
// case where the name service already carries that information.
func BuildOracle(reports []nameservice.DatanodeStorageReport, nodeGroupAware bool) topology.Oracle {
	locs := make(map[string]topology.Location, len(reports))
	for _, r := range reports {
		locs[r.NodeUUID] = topology.Location{Rack: r.Rack, NodeGroup: r.NodeGroup}
	}
	return topology.NewMapOracle(locs, nodeGroupAware)
}
