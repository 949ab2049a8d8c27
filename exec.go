// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"errors"
	"os/exec"
	"syscall"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// command starts cmd stopped at its first instruction, runs setup while the
// child is still trapped, then lets it run to completion.
func command(cmd *exec.Cmd, setup func() error) error {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Ptrace = true

	if err := cmd.Start(); err != nil {
		return err
	}
	state, err := cmd.Process.Wait()
	if err != nil {
		_ = cmd.Process.Kill()
		return err
	}
	if state.Sys().(syscall.WaitStatus).TrapCause() == -1 {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return errors.New("perf: tracee did not trap as expected")
	}

	// If setup fails, the child must still be detached and reaped.
	errSetup := setup()

	if err := unix.PtraceDetach(cmd.Process.Pid); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}
	glog.V(1).Infof("perf: measuring pid %d", cmd.Process.Pid)

	err = cmd.Wait()
	if errSetup != nil {
		return errSetup
	}
	return err
}

// Command runs cmd and measures the event configured by attr for its
// lifetime, analogously to Measure. The counter is opened on the child
// before it executes its first instruction.
func Command(attr *Attr, cmd *exec.Cmd, cpu int, group *Counter) (Count, error) {
	var c *Counter
	err := command(cmd, func() error {
		var err error
		c, err = Open(attr, cmd.Process.Pid, cpu, group, 0)
		if err != nil {
			return err
		}
		return c.Enable()
	})
	if c != nil {
		defer c.Close()
	}
	if err != nil {
		return Count{}, err
	}
	return c.ReadCount()
}

// Command runs cmd and measures the group for its lifetime, analogously
// to MeasureGroup.
func (g *Group) Command(cmd *exec.Cmd, cpu int) (*GroupCount, error) {
	var leader *Counter
	err := command(cmd, func() error {
		var err error
		leader, err = g.Open(cmd.Process.Pid, cpu)
		if err != nil {
			return err
		}
		return leader.Enable()
	})
	if leader != nil {
		defer leader.Close()
	}
	if err != nil {
		return nil, err
	}
	return leader.ReadGroupCount()
}
