package channel

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/v3/process"
)

// Holder is a process that has the channel open
type Holder struct {
	PID     int32
	Name    string
	Cmdline string
}

// Holders returns the processes that have path open, sorted by PID. Processes whose
// file descriptors cannot be inspected (other users, short-lived) are skipped.
func Holders(path string) ([]Holder, error) {
	target := resolve(path)

	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to get processes: %w", err)
	}

	var holders []Holder
	for _, p := range procs {
		files, err := p.OpenFiles()
		if err != nil {
			continue
		}

		for _, f := range files {
			if f.Path != target {
				continue
			}
			holder := Holder{PID: p.Pid}
			if name, err := p.Name(); err == nil {
				holder.Name = name
			}
			if cmdline, err := p.Cmdline(); err == nil {
				holder.Cmdline = cmdline
			}
			holders = append(holders, holder)
			break
		}
	}

	sort.Slice(holders, func(i, j int) bool {
		return holders[i].PID < holders[j].PID
	})
	return holders, nil
}

func resolve(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}
