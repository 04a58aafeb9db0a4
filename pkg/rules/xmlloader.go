package rules

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/conclave/pkg/types"
)

// XMLLoader reads an application-rules document from disk. It is the one
// concrete Loader the core ships; the rules source is itself an external
// collaborator (spec §1), so nothing downstream depends on this file
// format beyond the Catalog it produces.
type XMLLoader struct {
	Path string
}

func NewXMLLoader(path string) *XMLLoader {
	return &XMLLoader{Path: path}
}

func (l *XMLLoader) Load() (*Catalog, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("rules: open %s: %w", l.Path, err)
	}
	defer f.Close()
	return parseXML(f)
}

type xmlRules struct {
	XMLName      xml.Name         `xml:"rules"`
	Applications []xmlApplication `xml:"application"`
}

type xmlApplication struct {
	Name                    string        `xml:"name,attr"`
	StartSequence           int           `xml:"start_sequence"`
	StopSequence            int           `xml:"stop_sequence"`
	StartingFailureStrategy string        `xml:"starting_failure_strategy"`
	RunningFailureStrategy  string        `xml:"running_failure_strategy"`
	Programs                []xmlProgram  `xml:"program"`
}

type xmlProgram struct {
	Name                   string `xml:"name,attr"`
	Addresses              string `xml:"addresses"`
	StartSequence          int    `xml:"start_sequence"`
	StopSequence           int    `xml:"stop_sequence"`
	Required               bool   `xml:"required"`
	WaitExit               bool   `xml:"wait_exit"`
	ExpectedLoading        int    `xml:"expected_loading"`
	RunningFailureStrategy string `xml:"running_failure_strategy"`
	HomogeneousIndex       *int   `xml:"homogeneous_index"`
}

func parseXML(r io.Reader) (*Catalog, error) {
	var doc xmlRules
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("rules: decode: %w", err)
	}

	cat := NewCatalog()
	for _, app := range doc.Applications {
		if app.Name == "" {
			return nil, fmt.Errorf("rules: application with no name")
		}
		entry := &ApplicationEntry{
			Name: app.Name,
			Rules: types.ApplicationRules{
				StartSequence:   app.StartSequence,
				StopSequence:    app.StopSequence,
				StartingFailure: startingFailureStrategy(app.StartingFailureStrategy),
				RunningFailure:  runningFailureStrategy(app.RunningFailureStrategy),
			},
		}
		for _, prog := range app.Programs {
			if prog.Name == "" {
				return nil, fmt.Errorf("rules: program with no name in application %s", app.Name)
			}
			pr := types.DefaultProcessRules()
			if prog.Addresses != "" {
				pr.Addresses = splitAddresses(prog.Addresses)
			}
			pr.StartSequence = prog.StartSequence
			pr.StopSequence = prog.StopSequence
			pr.Required = prog.Required
			pr.WaitExit = prog.WaitExit
			if prog.ExpectedLoading != 0 {
				pr.ExpectedLoading = ClampLoading(prog.ExpectedLoading)
			}
			pr.RunningFailure = runningFailureStrategy(prog.RunningFailureStrategy)
			pr.HomogeneousIndex = -1
			if prog.HomogeneousIndex != nil {
				pr.HomogeneousIndex = *prog.HomogeneousIndex
			}
			entry.Processes = append(entry.Processes, ProcessEntry{Name: prog.Name, Rules: pr})
		}
		cat.Applications[app.Name] = entry
	}
	return cat, nil
}

func splitAddresses(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, trimSpace(raw[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func startingFailureStrategy(s string) types.StartingFailureStrategy {
	switch s {
	case string(types.StartFailureAbort):
		return types.StartFailureAbort
	case string(types.StartFailureStop):
		return types.StartFailureStop
	default:
		return types.StartFailureContinue
	}
}

func runningFailureStrategy(s string) types.RunningFailureStrategy {
	switch s {
	case string(types.RunningFailureRestartProcess):
		return types.RunningFailureRestartProcess
	case string(types.RunningFailureStopApplication):
		return types.RunningFailureStopApplication
	case string(types.RunningFailureRestartApplication):
		return types.RunningFailureRestartApplication
	default:
		return types.RunningFailureContinue
	}
}
