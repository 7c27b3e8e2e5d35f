package pipeline

import "time"

// Status is a snapshot of pipeline activity.
type Status struct {
	Stream      string
	Scheduled   bool
	Running     bool
	LastCycleID string
	LastStart   time.Time
	LastFinish  time.Time
	Processed   int
	Failed      int
	Skipped     int
	LastFile    string
	LastError   string
}

// Status returns the current snapshot. Counters accumulate across cycles.
func (p *Pipeline) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	s := p.status
	s.Running = p.running.Load()
	return s
}

func (p *Pipeline) setScheduled(v bool) {
	p.statusMu.Lock()
	p.status.Scheduled = v
	p.statusMu.Unlock()
}

func (p *Pipeline) cycleStarted(id string, at time.Time) {
	p.statusMu.Lock()
	p.status.LastCycleID = id
	p.status.LastStart = at
	p.statusMu.Unlock()
}

func (p *Pipeline) cycleFinished(r CycleResult, err error) {
	p.statusMu.Lock()
	p.status.LastFinish = time.Now()
	p.status.Processed += r.Processed
	p.status.Failed += r.Failed
	p.status.Skipped += r.Skipped
	if err != nil {
		p.status.LastError = err.Error()
	}
	p.statusMu.Unlock()
}

func (p *Pipeline) recordFile(name string, err error) {
	p.statusMu.Lock()
	p.status.LastFile = name
	if err != nil {
		p.status.LastError = err.Error()
	}
	p.statusMu.Unlock()
}
