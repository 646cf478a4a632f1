package poller

import (
	"fmt"
	"time"

	"github.com/saba-futai/fwspeed/internal/throughput"
)

// Readout is the textual side of a tick: the two rates that were pushed and
// the failure, if any, that replaced them with Unavailable.
type Readout struct {
	Down throughput.Sample
	Up   throughput.Sample
	At   time.Time
	Err  error
}

func (r Readout) String() string {
	return fmt.Sprintf("down %s, up %s", formatRate(r.Down), formatRate(r.Up))
}

func formatRate(s throughput.Sample) string {
	if !s.Valid() {
		return "n/a"
	}
	return fmt.Sprintf("%5.1f KB/s", float64(s))
}
