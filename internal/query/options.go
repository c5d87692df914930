package query

import (
	"fmt"
	"slices"
	"strings"
)

// ExposureTypes are the values accepted by --type.
var ExposureTypes = []string{
	"SharedViaLink",
	"SharedToDomain",
	"ApplicationRead",
	"CloudStorage",
	"RemovableMedia",
	"IsPublic",
}

// Options enumerates every search option a file event command accepts.
type Options struct {
	Begin         string
	End           string
	UseCheckpoint string

	AdvancedQuery string
	SavedSearch   string

	OrQuery            bool
	IncludeNonExposure bool

	Types          []string
	Usernames      []string
	Actors         []string
	MD5s           []string
	SHA256s        []string
	Sources        []string
	FileNames      []string
	FilePaths      []string
	FileCategories []string
	ProcessOwners  []string
	TabURLs        []string

	// PageSize overrides DefaultPageSize for literal queries.
	PageSize int
}

type literal struct {
	flag   string
	term   string
	values []string
}

// literals returns the filter flags in the order they are applied.
func (o Options) literals() []literal {
	return []literal{
		{"--type", TermExposure, o.Types},
		{"--c42-username", TermDeviceUsername, o.Usernames},
		{"--actor", TermActor, o.Actors},
		{"--md5", TermMD5, o.MD5s},
		{"--sha256", TermSHA256, o.SHA256s},
		{"--source", TermSource, o.Sources},
		{"--file-name", TermFileName, o.FileNames},
		{"--file-path", TermFilePath, o.FilePaths},
		{"--file-category", TermFileCategory, o.FileCategories},
		{"--process-owner", TermProcessOwner, o.ProcessOwners},
		{"--tab-url", TermTabURL, o.TabURLs},
	}
}

// literalFlags lists every option that only makes sense when the query is
// built from individual flags.
func (o Options) literalFlags() []string {
	var flags []string
	for _, l := range o.literals() {
		if len(l.values) > 0 {
			flags = append(flags, l.flag)
		}
	}
	if o.Begin != "" {
		flags = append(flags, "--begin")
	}
	if o.End != "" {
		flags = append(flags, "--end")
	}
	if o.UseCheckpoint != "" {
		flags = append(flags, "--use-checkpoint")
	}
	if o.IncludeNonExposure {
		flags = append(flags, "--include-non-exposure")
	}
	if o.OrQuery {
		flags = append(flags, "--or-query")
	}
	return flags
}

// IncompatibleOptionsError reports flags that cannot be combined with Option.
type IncompatibleOptionsError struct {
	Option    string
	Conflicts []string
}

func (e *IncompatibleOptionsError) Error() string {
	return fmt.Sprintf("%s can't be used with: %s", strings.Join(e.Conflicts, ", "), e.Option)
}

// Usage marks the error as a command line usage problem.
func (e *IncompatibleOptionsError) Usage() bool { return true }

// InvalidChoiceError reports a value outside a fixed set of choices.
type InvalidChoiceError struct {
	Flag    string
	Value   string
	Choices []string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("invalid value for '%s': invalid choice: %s. (choose from %s)",
		e.Flag, e.Value, strings.Join(e.Choices, ", "))
}

// Usage marks the error as a command line usage problem.
func (e *InvalidChoiceError) Usage() bool { return true }

// Validate checks option combinations before anything is resolved or sent.
func (o Options) Validate() error {
	switch {
	case o.AdvancedQuery != "":
		conflicts := o.literalFlags()
		if o.SavedSearch != "" {
			conflicts = append(conflicts, "--saved-search")
		}
		if len(conflicts) > 0 {
			return &IncompatibleOptionsError{Option: "--advanced-query", Conflicts: conflicts}
		}
	case o.SavedSearch != "":
		if conflicts := o.literalFlags(); len(conflicts) > 0 {
			return &IncompatibleOptionsError{Option: "--saved-search", Conflicts: conflicts}
		}
	}

	if o.IncludeNonExposure && len(o.Types) > 0 {
		return &IncompatibleOptionsError{Option: "--type", Conflicts: []string{"--include-non-exposure"}}
	}

	for _, t := range o.Types {
		if !slices.Contains(ExposureTypes, t) {
			return &InvalidChoiceError{Flag: "--type", Value: t, Choices: ExposureTypes}
		}
	}
	return nil
}
