package wptresults

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Mozlog actions understood by the processor.
const (
	ActionSuiteStart    = "suite_start"
	ActionTestStart     = "test_start"
	ActionTestStatus    = "test_status"
	ActionTestEnd       = "test_end"
	ActionSuiteEnd      = "suite_end"
	ActionProcessOutput = "process_output"
	ActionShutdown      = "shutdown"
)

// Event is one decoded mozlog entry.
type Event interface {
	Action() string
}

// Meta holds the fields every mozlog entry carries.
type Meta struct {
	// Time is in milliseconds since the epoch.
	Time   int64  `json:"time"`
	Thread string `json:"thread"`
	PID    int    `json:"pid"`
	Source string `json:"source"`
}

// SuiteStart starts one iteration over the selected tests.
type SuiteStart struct {
	Meta
	// Tests maps a group, optionally prefixed by "<subsuite>:", to its test IDs.
	Tests   map[string][]string `json:"tests"`
	RunInfo map[string]any      `json:"run_info"`
}

// TestStart marks a test as running.
type TestStart struct {
	Meta
	Test     string `json:"test"`
	Subsuite string `json:"subsuite"`
}

// TestStatus reports the outcome of a subtest.
type TestStatus struct {
	Meta
	Test              string   `json:"test"`
	Subsuite          string   `json:"subsuite"`
	Subtest           string   `json:"subtest"`
	Status            string   `json:"status"`
	Expected          string   `json:"expected"`
	KnownIntermittent []string `json:"known_intermittent"`
	Message           string   `json:"message"`
}

// TestEnd reports the harness status of a test.
type TestEnd struct {
	Meta
	Test              string   `json:"test"`
	Subsuite          string   `json:"subsuite"`
	Status            string   `json:"status"`
	Expected          string   `json:"expected"`
	KnownIntermittent []string `json:"known_intermittent"`
	Message           string   `json:"message"`
	Extra             EndExtra `json:"extra"`
}

// EndExtra holds the product specific data attached to a test end.
type EndExtra struct {
	BrowserPID         PID               `json:"browser_pid"`
	ReftestScreenshots []json.RawMessage `json:"reftest_screenshots"`
	LeakCounters       map[string][2]int `json:"leak_counters"`
}

// Screenshot is a base64 encoded PNG taken of url.
type Screenshot struct {
	URL        string `json:"url"`
	Screenshot string `json:"screenshot"`
}

// Screenshots returns the screenshots of a reftest and the relation between them,
// "==" or "!=". The relation is empty when the runner did not record it.
func (e EndExtra) Screenshots() (shots []Screenshot, relation string, err error) {
	for _, raw := range e.ReftestScreenshots {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '"' {
			if err := json.Unmarshal(raw, &relation); err != nil {
				return nil, "", err
			}
			continue
		}
		var s Screenshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, "", err
		}
		shots = append(shots, s)
	}
	return shots, relation, nil
}

// SuiteEnd ends an iteration.
type SuiteEnd struct {
	Meta
}

// ProcessOutput is one line printed by a process spawned by the runner.
type ProcessOutput struct {
	Meta
	Process PID    `json:"process"`
	Command string `json:"command"`
	Data    string `json:"data"`
}

// Shutdown is the last event of a stream.
type Shutdown struct {
	Meta
}

// Unknown is any event the processor does not handle.
type Unknown struct {
	Meta
	Name string `json:"action"`
}

// Action implements Event.
func (SuiteStart) Action() string { return ActionSuiteStart }

// Action implements Event.
func (TestStart) Action() string { return ActionTestStart }

// Action implements Event.
func (TestStatus) Action() string { return ActionTestStatus }

// Action implements Event.
func (TestEnd) Action() string { return ActionTestEnd }

// Action implements Event.
func (SuiteEnd) Action() string { return ActionSuiteEnd }

// Action implements Event.
func (ProcessOutput) Action() string { return ActionProcessOutput }

// Action implements Event.
func (Shutdown) Action() string { return ActionShutdown }

// Action implements Event.
func (u Unknown) Action() string { return u.Name }

// PID is a process identifier, encoded either as a number or as a string.
type PID string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = PID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid pid %s: %v", b, err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("invalid pid %s: %v", b, err)
	}
	*p = PID(n.String())
	return nil
}

// DecodeEvent decodes one line of a raw mozlog stream.
func DecodeEvent(line []byte) (Event, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("invalid event: %v", err)
	}

	var ev Event
	var err error
	switch head.Action {
	case ActionSuiteStart:
		ev, err = decode[SuiteStart](line)
	case ActionTestStart:
		ev, err = decode[TestStart](line)
	case ActionTestStatus:
		ev, err = decode[TestStatus](line)
	case ActionTestEnd:
		ev, err = decode[TestEnd](line)
	case ActionSuiteEnd:
		ev, err = decode[SuiteEnd](line)
	case ActionProcessOutput:
		ev, err = decode[ProcessOutput](line)
	case ActionShutdown:
		ev, err = decode[Shutdown](line)
	case "":
		return nil, fmt.Errorf("invalid event: missing action")
	default:
		ev, err = decode[Unknown](line)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %q event: %v", head.Action, err)
	}
	return ev, nil
}

func decode[T Event](line []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
