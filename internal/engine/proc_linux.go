//go:build linux

package engine

import (
	"fmt"
	"os"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// engineNice is the scheduling priority of the engine process.
const engineNice = 19

func lowerPriority(pid int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, engineNice)
}

func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}

// signalStatus sends SIGUSR1 to every child of pid and then to pid itself.
// John forks one worker per core and each prints its own status line.
func signalStatus(pid int) error {
	children, err := childPIDs(pid)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := unix.Kill(child, unix.SIGUSR1); err != nil && err != unix.ESRCH {
			return fmt.Errorf("signal worker %d: %w", child, err)
		}
	}
	return unix.Kill(pid, unix.SIGUSR1)
}

func childPIDs(pid int) ([]int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var children []int
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			// The process exited between listing and reading.
			continue
		}
		if stat.PPID == pid {
			children = append(children, p.PID)
		}
	}
	return children, nil
}
