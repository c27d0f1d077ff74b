// Package test holds the acceptance scenarios run by cmd/scenario-runner.
// Each scenario drives a fresh engine through its public API only.
package test

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
	"github.com/inocsim/server/internal/engine"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

// TestResult captures the outcome of each scenario.
type TestResult struct {
	ScenarioName string
	Input        string
	Expected     string
	Actual       string
	Passed       bool
	Reason       string
}

// Scenario is one named acceptance check.
type Scenario struct {
	Name  string
	Input string
	Run   func(ctx context.Context, s *Suite) (expected, actual string, err error)
}

// Suite runs scenarios and collects their results.
type Suite struct {
	logger    *logger.Logger
	scenarios []Scenario
	results   []TestResult
	verbose   bool
}

// NewSuite creates the acceptance harness with the default scenarios.
func NewSuite(log *logger.Logger, verbose bool) *Suite {
	s := &Suite{logger: log, verbose: verbose}
	s.scenarios = []Scenario{
		{Name: "A: exposed to acute at liver stage end", Input: "1 host, liver_stage_days=7, prob_acute=1", Run: scenarioAcuteOnset},
		{Name: "B: treatment clears every inoculation", Input: "1 host, 2 inoculations, pending_treatment_day=5", Run: scenarioTreatment},
		{Name: "C: zero incidence never spawns", Input: "incidence_rate=0, 1000 ticks", Run: scenarioZeroIncidence},
		{Name: "D: prophylaxis expires on its end day", Input: "prophylaxis_end_day=10", Run: scenarioProphylaxisExpiry},
		{Name: "Invariants: seeded long run", Input: "20 hosts, 200 days, seed 42", Run: scenarioInvariants},
	}
	return s
}

// RunTest executes every scenario in order.
func (s *Suite) RunTest(ctx context.Context) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("INOCULATION ENGINE ACCEPTANCE SCENARIOS")
	fmt.Println(strings.Repeat("=", 60))

	for _, sc := range s.scenarios {
		if ctx.Err() != nil {
			return
		}
		result := TestResult{ScenarioName: sc.Name, Input: sc.Input}

		expected, actual, err := sc.Run(ctx, s)
		result.Expected, result.Actual = expected, actual
		if err != nil {
			result.Reason = err.Error()
		} else {
			result.Passed = true
			result.Reason = "ok"
		}
		s.results = append(s.results, result)

		mark := "PASS"
		if !result.Passed {
			mark = "FAIL"
		}
		fmt.Printf("[%s] %s\n", mark, sc.Name)
		if s.verbose || !result.Passed {
			fmt.Printf("       input:    %s\n", result.Input)
			fmt.Printf("       expected: %s\n", result.Expected)
			fmt.Printf("       actual:   %s\n", result.Actual)
			if !result.Passed {
				fmt.Printf("       reason:   %s\n", result.Reason)
			}
		}
	}
}

// GetResults returns all scenario results.
func (s *Suite) GetResults() []TestResult {
	return s.results
}

func (s *Suite) newEngine(p params.Parameters, src random.Source) (*engine.Engine, *events.EventLog, error) {
	el := events.NewEventLog(nil)
	opts := engine.DefaultOptions()
	opts.Params = p
	opts.Source = src
	eng, err := engine.NewEngine(opts, el, s.logger)
	return eng, el, err
}

// advanceTo ticks one simulated day at a time until day is reached.
func advanceTo(eng *engine.Engine, day uint32) error {
	for eng.Day() < day {
		if _, err := eng.Tick(engine.DefaultSecondsPerDay); err != nil {
			return err
		}
	}
	return nil
}

func scenarioAcuteOnset(_ context.Context, s *Suite) (string, string, error) {
	p := params.Default()
	p.LiverStageDays = 7
	p.ProbAcute = 1
	p.IncidenceRate = 0
	expected := "one ACUTE inoculation with delay in [10, 40], not 7"

	eng, _, err := s.newEngine(p, random.Fixed(0.5))
	if err != nil {
		return expected, "", err
	}
	if _, err := eng.Seed(1); err != nil {
		return expected, "", err
	}
	if err := advanceTo(eng, 6); err != nil {
		return expected, "", err
	}
	if got := eng.Snapshot().Hosts[0].Inoculations[0].State; got != host.StateExposed {
		return expected, string(got), fmt.Errorf("left the liver stage early on day 6")
	}
	if err := advanceTo(eng, 7); err != nil {
		return expected, "", err
	}

	inocs := eng.Snapshot().Hosts[0].Inoculations
	if len(inocs) != 1 {
		return expected, fmt.Sprintf("%d inoculations", len(inocs)), fmt.Errorf("expected exactly one inoculation")
	}
	inoc := inocs[0]
	actual := fmt.Sprintf("%s delay=%.1f start_day=%d", inoc.State, inoc.DelayDays, inoc.StartDay)
	switch {
	case inoc.State != host.StateAcute:
		return expected, actual, fmt.Errorf("state is %s", inoc.State)
	case inoc.DelayDays < p.AcuteDuration.Min || inoc.DelayDays > p.AcuteDuration.Max:
		return expected, actual, fmt.Errorf("delay %.2f outside acute_duration", inoc.DelayDays)
	case inoc.StartDay != 7:
		return expected, actual, fmt.Errorf("start day not reset to 7")
	}
	return expected, actual, nil
}

// treatmentParams yields, with a zero source, a second inoculation on day 1 and
// a treatment request for day 5 from the first acute onset on day 2.
func treatmentParams() params.Parameters {
	p := params.Default()
	p.LiverStageDays = 2
	p.ProbAcute = 1
	p.ProbTreatment = 1
	p.TreatmentDelay = params.Uniform{Min: 3, Max: 4}
	p.AcuteDuration = params.Uniform{Min: 10, Max: 20}
	p.IncidenceRate = 0.5
	return p
}

func scenarioTreatment(_ context.Context, s *Suite) (string, string, error) {
	p := treatmentParams()
	expected := fmt.Sprintf("0 inoculations, on_prophylaxis, end day %d", 5+int(p.ProphylaxisDays))

	eng, _, err := s.newEngine(p, random.Fixed(0))
	if err != nil {
		return expected, "", err
	}
	if _, err := eng.Seed(1); err != nil {
		return expected, "", err
	}
	if err := advanceTo(eng, 1); err != nil {
		return expected, "", err
	}
	if err := eng.UpdateParam("incidence_rate", 0); err != nil {
		return expected, "", err
	}
	if err := advanceTo(eng, 4); err != nil {
		return expected, "", err
	}

	before := eng.Snapshot().Hosts[0]
	if len(before.Inoculations) != 2 || before.PendingTreatmentDay == nil || *before.PendingTreatmentDay != 5 {
		return expected, describeHost(before), fmt.Errorf("setup did not reach 2 inoculations with treatment due on day 5")
	}

	if err := advanceTo(eng, 5); err != nil {
		return expected, "", err
	}
	after := eng.Snapshot().Hosts[0]
	actual := describeHost(after)
	wantEnd := uint32(5) + uint32(p.ProphylaxisDays)
	switch {
	case len(after.Inoculations) != 0:
		return expected, actual, fmt.Errorf("%d inoculations survived treatment", len(after.Inoculations))
	case !after.OnProphylaxis:
		return expected, actual, fmt.Errorf("prophylaxis not started")
	case after.ProphylaxisEndDay == nil || *after.ProphylaxisEndDay != wantEnd:
		return expected, actual, fmt.Errorf("prophylaxis end day wrong")
	case after.PendingTreatmentDay != nil:
		return expected, actual, fmt.Errorf("pending treatment not consumed")
	}
	return expected, actual, nil
}

func scenarioZeroIncidence(_ context.Context, s *Suite) (string, string, error) {
	p := params.Default()
	p.IncidenceRate = 0
	expected := "0 spawned"

	eng, el, err := s.newEngine(p, random.NewSeeded(7))
	if err != nil {
		return expected, "", err
	}
	if _, err := eng.Seed(10); err != nil {
		return expected, "", err
	}

	spawned := 0
	for i := 0; i < 1000; i++ {
		res, err := eng.Tick(0.37)
		if err != nil {
			return expected, "", err
		}
		spawned += res.Spawned
	}
	for _, e := range el.Replay() {
		if e.Type == events.EventTypeInoculationSpawned {
			spawned++
		}
	}
	actual := fmt.Sprintf("%d spawned by day %d", spawned, eng.Day())
	if spawned != 0 {
		return expected, actual, fmt.Errorf("incidence produced inoculations at rate 0")
	}
	return expected, actual, nil
}

func scenarioProphylaxisExpiry(_ context.Context, s *Suite) (string, string, error) {
	p := treatmentParams()
	p.ProphylaxisDays = 5
	expected := "on_prophylaxis=false and no end day at day 10"

	eng, _, err := s.newEngine(p, random.Fixed(0))
	if err != nil {
		return expected, "", err
	}
	if _, err := eng.Seed(1); err != nil {
		return expected, "", err
	}
	if err := eng.UpdateParam("incidence_rate", 0); err != nil {
		return expected, "", err
	}
	if err := advanceTo(eng, 9); err != nil {
		return expected, "", err
	}
	h := eng.Snapshot().Hosts[0]
	if !h.OnProphylaxis || h.ProphylaxisEndDay == nil || *h.ProphylaxisEndDay != 10 {
		return expected, describeHost(h), fmt.Errorf("setup did not reach prophylaxis ending on day 10")
	}

	if err := advanceTo(eng, 10); err != nil {
		return expected, "", err
	}
	h = eng.Snapshot().Hosts[0]
	actual := describeHost(h)
	if h.OnProphylaxis || h.ProphylaxisEndDay != nil {
		return expected, actual, fmt.Errorf("prophylaxis still active on its end day")
	}
	return expected, actual, nil
}

func scenarioInvariants(_ context.Context, s *Suite) (string, string, error) {
	expected := "every live inoculation is EXPOSED/ACUTE/CHRONIC, status matches, seq strictly increasing"

	opts := engine.DefaultOptions()
	opts.Seed = 42
	el := events.NewEventLog(nil)
	eng, err := engine.NewEngine(opts, el, s.logger)
	if err != nil {
		return expected, "", err
	}
	if _, err := eng.Seed(20); err != nil {
		return expected, "", err
	}

	for eng.Day() < 200 {
		if _, err := eng.Tick(0.25); err != nil {
			return expected, "", err
		}
		st := eng.Snapshot()
		for _, h := range st.Hosts {
			if err := checkHost(h, st.Day); err != nil {
				return expected, describeHost(h), fmt.Errorf("day %d: %w", st.Day, err)
			}
		}
	}

	var last uint64
	for _, e := range el.Replay() {
		if e.Seq <= last {
			return expected, fmt.Sprintf("seq %d after %d", e.Seq, last), fmt.Errorf("event sequence not increasing")
		}
		last = e.Seq
	}

	sum := eng.Summary()
	return expected, fmt.Sprintf("day %d, %d events, mean %.2f inoculations/host", sum.Day, len(el.Replay()), sum.MeanInoculations), nil
}

func checkHost(h engine.HostView, day uint32) error {
	if h.OnProphylaxis != (h.ProphylaxisEndDay != nil) {
		return fmt.Errorf("prophylaxis flag and end day disagree")
	}
	if h.ProphylaxisEndDay != nil && *h.ProphylaxisEndDay <= day {
		return fmt.Errorf("expired prophylaxis still active")
	}
	states := make([]host.State, 0, len(h.Inoculations))
	for _, inoc := range h.Inoculations {
		switch inoc.State {
		case host.StateExposed, host.StateAcute, host.StateChronic:
		default:
			return fmt.Errorf("live inoculation in state %s", inoc.State)
		}
		if math.IsNaN(inoc.DelayDays) || inoc.DelayDays < 0 {
			return fmt.Errorf("invalid delay %v", inoc.DelayDays)
		}
		states = append(states, inoc.State)
	}

	want := host.DeriveStatus(h.OnProphylaxis, states)
	if h.Status != want {
		return fmt.Errorf("status %s, derived %s", h.Status, want)
	}
	return nil
}

func describeHost(h engine.HostView) string {
	end, pending := "-", "-"
	if h.ProphylaxisEndDay != nil {
		end = fmt.Sprint(*h.ProphylaxisEndDay)
	}
	if h.PendingTreatmentDay != nil {
		pending = fmt.Sprint(*h.PendingTreatmentDay)
	}
	return fmt.Sprintf("%s status=%s inoculations=%d prophylaxis=%v end=%s pending=%s",
		h.Label, h.Status, len(h.Inoculations), h.OnProphylaxis, end, pending)
}
