// Package dedupe implements the deduplication action planner: a pure pass
// over the analyzer's duplicate sets that decides which copies to keep and
// emits a plan of removal actions for an external executor.
//
// The planner never touches the filesystem. Each action carries the
// remaining duplicates so an executor may hard-link instead of delete.
package dedupe

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/FollowTheProcess/dedup/analyze"
	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/hashtree"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// Version is the action file format version tag.
const Version = "V1"

// Action kinds.
const (
	// RemoveFile removes (or hard-links away) a duplicate file.
	RemoveFile = "remove_file"
	// RemoveDirectory removes (or symlinks away) a duplicate directory.
	RemoveDirectory = "remove_directory"
)

// Action is one planned deduplication step.
type Action struct {
	// Kind tags the action, one of RemoveFile or RemoveDirectory.
	Kind string `json:"action"`
	// Path is the logical path to remove.
	Path string `json:"path"`
	// Hash is the duplicate content's digest.
	Hash digest.Digest `json:"hash"`
	// Size is the file's content size, files only.
	Size int64 `json:"size,omitempty"`
	// Children is the directory's child count, directories only.
	Children int64 `json:"children,omitempty"`
	// RemainingDuplicates lists the copies that survive this action, so an
	// executor can link against one of them instead of deleting.
	RemainingDuplicates []string `json:"remaining_duplicates"`
}

// Plan is the action file written by the planner.
type Plan struct {
	Version string   `json:"version"`
	Actions []Action `json:"actions"`
}

// Model selects how the planner picks which duplicates to keep.
type Model int

const (
	// Golden keeps every copy under a reference location and removes
	// duplicates found in the target locations.
	Golden Model = iota
	// Incremental keeps the first copy of each set and removes the rest.
	Incremental
)

// ParseModel parses a planner model from its CLI name.
func ParseModel(s string) (Model, error) {
	switch s {
	case "golden":
		return Golden, nil
	case "incremental":
		return Incremental, nil
	default:
		return Golden, fmt.Errorf("invalid model %q: possible values are 'golden', 'incremental'", s)
	}
}

// MatchKind selects how reference and target patterns match paths.
type MatchKind int

const (
	// Plain matches a pattern as a literal path prefix.
	Plain MatchKind = iota
	// Glob matches with doublestar glob patterns.
	Glob
	// Regex matches with regular expressions.
	Regex
)

// ParseMatchKind parses a match kind from its CLI name.
func ParseMatchKind(s string) (MatchKind, error) {
	switch s {
	case "plain":
		return Plain, nil
	case "glob":
		return Glob, nil
	case "regex":
		return Regex, nil
	default:
		return Plain, fmt.Errorf("invalid matching model %q: possible values are 'plain', 'glob', 'regex'", s)
	}
}

// Matcher matches logical path strings against a single pattern.
type Matcher struct {
	kind    MatchKind
	pattern string
	regex   *regexp.Regexp
}

// NewMatcher compiles a matcher, validating the pattern eagerly so config
// errors surface before any planning happens.
func NewMatcher(kind MatchKind, pattern string) (Matcher, error) {
	m := Matcher{kind: kind, pattern: pattern}
	switch kind {
	case Regex:
		regex, err := regexp.Compile(pattern)
		if err != nil {
			return Matcher{}, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		m.regex = regex
	case Glob:
		if !doublestar.ValidatePattern(pattern) {
			return Matcher{}, fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return m, nil
}

// Match reports whether the matcher accepts the path.
func (m Matcher) Match(path string) bool {
	switch m.kind {
	case Regex:
		return m.regex.MatchString(path)
	case Glob:
		ok, err := doublestar.Match(m.pattern, path)
		return err == nil && ok
	default:
		return strings.HasPrefix(path, m.pattern)
	}
}

// Settings configures a planning run.
type Settings struct {
	// Log is the run's logger, nil means silent.
	Log *zap.SugaredLogger
	// Input is the duplicate-set file from analyze.
	Input string
	// Output is the action file to write.
	Output string
	// Reference is the golden location pattern, golden model only.
	Reference string
	// Targets restrict removals to matching locations. Empty means any
	// non-reference location is fair game.
	Targets []string
	// Model is the keep/remove policy.
	Model Model
	// Match is how Reference and Targets match paths.
	Match MatchKind
}

// Stats summarises a planning run.
type Stats struct {
	// Actions is how many removal actions were planned.
	Actions int
	// ReclaimedBytes is the disk space the plan would free.
	ReclaimedBytes int64
}

// Run reads the duplicate sets and writes the action plan.
func Run(settings Settings) (Stats, error) {
	log := settings.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	input, err := os.Open(settings.Input)
	if err != nil {
		return Stats{}, fmt.Errorf("could not open input file %s: %w", settings.Input, err)
	}
	var sets analyze.File
	decodeErr := json.NewDecoder(input).Decode(&sets)
	input.Close()
	if decodeErr != nil {
		return Stats{}, fmt.Errorf("could not read duplicate sets from %s: %w", settings.Input, decodeErr)
	}

	var reference Matcher
	if settings.Model == Golden {
		reference, err = NewMatcher(settings.Match, settings.Reference)
		if err != nil {
			return Stats{}, err
		}
	}
	targets := make([]Matcher, 0, len(settings.Targets))
	for _, pattern := range settings.Targets {
		target, err := NewMatcher(settings.Match, pattern)
		if err != nil {
			return Stats{}, err
		}
		targets = append(targets, target)
	}

	plan := Plan{Version: Version}
	var stats Stats

	for _, set := range sets.Entries {
		var removals []string
		switch settings.Model {
		case Golden:
			removals = planGolden(set, reference, targets, log)
		case Incremental:
			removals = planIncremental(set, targets)
		}

		for _, path := range removals {
			action := Action{
				Path:                path,
				Hash:                set.Hash,
				RemainingDuplicates: remaining(set, path),
			}
			if set.FileType == hashtree.TypeDirectory {
				action.Kind = RemoveDirectory
				action.Children = set.Size
			} else {
				action.Kind = RemoveFile
				action.Size = set.Size
				stats.ReclaimedBytes += set.Size
			}
			plan.Actions = append(plan.Actions, action)
			stats.Actions++
		}
	}

	output, err := os.Create(settings.Output)
	if err != nil {
		return stats, fmt.Errorf("could not open output file %s: %w", settings.Output, err)
	}
	defer output.Close()

	if err := json.NewEncoder(output).Encode(plan); err != nil {
		return stats, fmt.Errorf("could not write actions to %s: %w", settings.Output, err)
	}
	return stats, nil
}

// planGolden removes copies outside the reference location, provided at
// least one reference copy exists to deduplicate against.
func planGolden(set *analyze.Entry, reference Matcher, targets []Matcher, log *zap.SugaredLogger) []string {
	var kept, candidates []string
	for _, path := range set.Conflicting {
		s := path.String()
		if reference.Match(s) {
			kept = append(kept, s)
		} else if inTargets(s, targets) {
			candidates = append(candidates, s)
		}
	}
	if len(kept) == 0 {
		log.Warnf("No copy of %s matches the reference location, skipping the set", set.Hash)
		return nil
	}
	return candidates
}

// planIncremental keeps the first copy of the set and removes the rest.
func planIncremental(set *analyze.Entry, targets []Matcher) []string {
	var removals []string
	for i, path := range set.Conflicting {
		if i == 0 {
			continue
		}
		if s := path.String(); inTargets(s, targets) {
			removals = append(removals, s)
		}
	}
	return removals
}

// inTargets reports whether a path is eligible for removal. No targets
// means everything is.
func inTargets(path string, targets []Matcher) bool {
	if len(targets) == 0 {
		return true
	}
	for _, target := range targets {
		if target.Match(path) {
			return true
		}
	}
	return false
}

// remaining lists every copy in the set except the one being removed.
func remaining(set *analyze.Entry, removed string) []string {
	var rest []string
	for _, path := range set.Conflicting {
		if s := path.String(); s != removed {
			rest = append(rest, s)
		}
	}
	return rest
}
