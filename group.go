// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// Group configures a group of events.
//
// The group is led by a placeholder software event which counts nothing.
// Reads on the leader hide its entry, so entries line up with the events
// added to the group.
type Group struct {
	// CountFormat configures the format of counts read from the group
	// leader. The Group, ID, Enabled and Running options are set
	// automatically.
	CountFormat CountFormat

	// Options configures options for all events in the group.
	Options Options

	err   error // sticky configuration error
	attrs []*Attr
}

// Add adds events to the group, as configured by cfgs.
//
// For each Configurator, a new *Attr is created, the group-specific settings
// are applied, then Configure is called on the *Attr to produce the final
// event attributes.
func (g *Group) Add(cfgs ...Configurator) {
	for _, cfg := range cfgs {
		g.add(cfg)
	}
}

func (g *Group) add(cfg Configurator) {
	if g.err != nil {
		return
	}
	attr := new(Attr)
	attr.Options = g.Options
	err := cfg.Configure(attr)
	if err != nil {
		g.err = err
		return
	}
	g.attrs = append(g.attrs, attr)
}

// leaderAttr returns the attributes of the placeholder group leader.
func (g *Group) leaderAttr() *Attr {
	attr := new(Attr)
	Dummy.Configure(attr)
	attr.Label = "group-leader"
	attr.Options = Options{
		Disabled:          true,
		ExcludeKernel:     true,
		ExcludeHypervisor: true,
	}
	attr.CountFormat = g.CountFormat
	attr.CountFormat.Enabled = true
	attr.CountFormat.Running = true
	attr.CountFormat.ID = true
	attr.CountFormat.Group = true
	return attr
}

// Open opens all the events in the group, and returns their leader.
//
// The returned Counter controls the whole group: Enable, Disable and
// Reset apply to every event, and ReadGroupCount reads all of them.
func (g *Group) Open(pid int, cpu int) (*Counter, error) {
	return g.OpenWith(LinuxSys{}, pid, cpu)
}

// OpenWith is like Open, but carries out system calls through sys.
func (g *Group) OpenWith(sys Sys, pid int, cpu int) (*Counter, error) {
	if len(g.attrs) == 0 {
		return nil, errors.New("perf: empty event group")
	}
	if g.err != nil {
		return nil, fmt.Errorf("perf: configuration error: %w", g.err)
	}
	la := g.leaderAttr()
	leader, err := OpenWith(sys, la, pid, cpu, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("perf: failed to open event leader: %w", err)
	}
	leader.placeholderLeader = true
	for idx, attr := range g.attrs {
		attr.CountFormat = la.CountFormat
		c, err := OpenWith(sys, attr, pid, cpu, leader, 0)
		if err != nil {
			leader.Close()
			return nil, fmt.Errorf("perf: failed to open group event #%d (%q): %w", idx, attr.Label, err)
		}
		leader.owned = append(leader.owned, c)
	}
	glog.V(1).Infof("perf: opened group of %d events led by fd %d", len(g.attrs), leader.fd)
	return leader, nil
}
