// Package client implements the polling side of the analysis pipeline: a
// status poller that reconstructs step-by-step progress from the job's
// single percentage value, and the demo fallback shown when the status
// endpoint itself is unreachable.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marcussviniciusa/lyz-sub000/model"
)

// StepStatus is one visual step's substate
type StepStatus string

const (
	StepWaiting    StepStatus = "waiting"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// NumSteps is the number of sequential visual steps per analysis
const NumSteps = 4

// PollState is the derived, client-only view of an analysis in progress.
type PollState struct {
	StepIndex int
	Steps     [NumSteps]StepStatus
	IsPolling bool
}

// StatusResponse mirrors the status endpoint contract, plus the IsDemo tag
// set only by the local fallback path.
type StatusResponse struct {
	Status       string                 `json:"status"`
	Progress     int                    `json:"progress"`
	IsProcessing bool                   `json:"isProcessing"`
	Data         *model.CanonicalResult `json:"data,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Error        string                 `json:"error,omitempty"`
	IsDemo       bool                   `json:"isDemo,omitempty"`
}

// DeriveState maps a 0-100 progress value onto the 4-step state machine.
// Each 25%-wide band marks the preceding steps completed and the current
// one processing; 100 marks everything completed.
func DeriveState(progress int) PollState {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	state := PollState{}
	for i := range state.Steps {
		state.Steps[i] = StepWaiting
	}

	var step int
	switch {
	case progress <= 25:
		step = 0
	case progress <= 50:
		step = 1
	case progress <= 75:
		step = 2
	default:
		step = 3
	}

	for i := 0; i < step; i++ {
		state.Steps[i] = StepCompleted
	}

	if progress == 100 {
		state.Steps[3] = StepCompleted
		state.StepIndex = NumSteps - 1
		return state
	}

	state.Steps[step] = StepProcessing
	state.StepIndex = step
	return state
}

// Options configures a Poller. Zero values get sensible defaults.
type Options struct {
	Interval              time.Duration // default 3s
	MaxDuration           time.Duration // hard polling ceiling, default 5m
	HTTPClient            *http.Client
	Token                 string // bearer token for the status endpoint
	TransportFailureLimit int    // consecutive failures before demo fallback, default 3
	Fallback              *FallbackResultProvider
	OnUpdate              func(PollState)
}

// Poller polls one job's status on a single logical timer. Start is
// idempotent; Stop and context cancellation both tear the poller down. The
// terminal callback is invoked exactly once.
type Poller struct {
	baseURL  string
	jobID    string
	opts     Options
	onDone   func(StatusResponse)
	doneOnce sync.Once

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	state   PollState
}

func NewPoller(baseURL, jobID string, onDone func(StatusResponse), opts *Options) *Poller {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Interval == 0 {
		o.Interval = 3 * time.Second
	}
	if o.MaxDuration == 0 {
		o.MaxDuration = 5 * time.Minute
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if o.TransportFailureLimit == 0 {
		o.TransportFailureLimit = 3
	}

	return &Poller{
		baseURL: baseURL,
		jobID:   jobID,
		opts:    o,
		onDone:  onDone,
	}
}

// Start begins polling. Calling Start while a poll is already active for
// this job is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop cancels polling. Safe to call multiple times and after completion.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the latest derived poll state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) loop(ctx context.Context) {
	deadline := time.Now().Add(p.opts.MaxDuration)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	var (
		progressSeen      bool
		transportFailures int
		confirming        bool
	)

	for {
		if time.Now().After(deadline) {
			p.finish(StatusResponse{
				Status: string(model.JobFailed),
				Error:  "analysis polling timed out",
			})
			return
		}

		resp, err := p.fetchStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.setPolling(false)
				return
			}

			transportFailures++
			// Only before any real progress has been observed may the demo
			// fallback take over; a mid-flight blip just keeps polling
			if !progressSeen && p.opts.Fallback != nil && transportFailures >= p.opts.TransportFailureLimit {
				p.runDemo(ctx)
				return
			}
		} else {
			transportFailures = 0
			if resp.Progress > 0 || resp.Status != string(model.JobPending) {
				progressSeen = true
			}

			switch {
			case resp.Status == string(model.JobFailed):
				state := DeriveState(resp.Progress)
				state.Steps[state.StepIndex] = StepError
				p.update(state)
				p.finish(resp)
				return

			case resp.Status == string(model.JobCompleted) && resp.Progress >= 100:
				p.update(DeriveState(100))
				// One confirmatory re-check guards against a transient 100%
				// reading racing the server's own terminal flag
				if !confirming {
					confirming = true
				} else {
					p.finish(resp)
					return
				}

			default:
				// A pending job is never complete, whatever the progress or
				// message claims
				confirming = false
				p.update(DeriveState(resp.Progress))
			}
		}

		select {
		case <-ctx.Done():
			p.setPolling(false)
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) fetchStatus(ctx context.Context) (StatusResponse, error) {
	url := fmt.Sprintf("%s/api/analysis-jobs/%s/status", p.baseURL, p.jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusResponse{}, err
	}
	if p.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.Token)
	}

	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return StatusResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatusResponse{}, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return StatusResponse{}, err
	}
	return status, nil
}

// runDemo presents a time-boxed simulated progression backed by demo
// content. It is clearly labeled and never confused with a real result.
func (p *Poller) runDemo(ctx context.Context) {
	for _, progress := range []int{25, 50, 75, 100} {
		select {
		case <-ctx.Done():
			p.setPolling(false)
			return
		case <-time.After(p.opts.Interval / 4):
		}
		p.update(DeriveState(progress))
	}
	p.finish(p.opts.Fallback.Result())
}

func (p *Poller) update(state PollState) {
	state.IsPolling = true

	p.mu.Lock()
	p.state = state
	p.mu.Unlock()

	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(state)
	}
}

func (p *Poller) setPolling(polling bool) {
	p.mu.Lock()
	p.state.IsPolling = polling
	p.mu.Unlock()
}

// finish stops polling and invokes the terminal callback exactly once.
func (p *Poller) finish(resp StatusResponse) {
	p.doneOnce.Do(func() {
		p.setPolling(false)

		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if p.onDone != nil {
			p.onDone(resp)
		}
	})
}
