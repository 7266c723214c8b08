package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"gopkg.in/yaml.v3"
)

// GoalFile is a goal described on disk, in JSON, TOML or YAML.
// Target may be a YYYY-MM-DD date or a phrase such as "next friday".
type GoalFile struct {
	Title       string   `json:"title" toml:"title" yaml:"title"`
	Description string   `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`
	Progress    int      `json:"progress,omitempty" toml:"progress,omitempty" yaml:"progress,omitempty"`
	Target      string   `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Tags        []string `json:"tags,omitempty" toml:"tags,omitempty" yaml:"tags,omitempty"`
	FolderID    *int64   `json:"folder_id,omitempty" toml:"folder_id,omitempty" yaml:"folder_id,omitempty"`
	Subgoals    []string `json:"subgoals,omitempty" toml:"subgoals,omitempty" yaml:"subgoals,omitempty"`
}

// Format is a goal file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf picks the encoding from the file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".toml":
		return FormatTOML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// Input converts the file into a validated GoalInput. now anchors relative dates.
func (f GoalFile) Input(now time.Time) (GoalInput, error) {
	in := GoalInput{
		Title:       f.Title,
		Description: f.Description,
		Progress:    f.Progress,
		Tags:        f.Tags,
		FolderID:    f.FolderID,
	}
	if f.Target != "" {
		date, err := ParseTargetDate(f.Target, now)
		if err != nil {
			return GoalInput{}, err
		}
		in.TargetDate = date
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return GoalInput{}, err
	}
	for _, s := range f.Subgoals {
		if strings.TrimSpace(s) == "" {
			return GoalInput{}, invalid("subgoal title is required")
		}
	}
	return in, nil
}

// DecodeGoalFile parses data in the given format.
func DecodeGoalFile(data []byte, format Format) (*GoalFile, error) {
	var gf GoalFile
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &gf)
	case FormatTOML:
		err = toml.Unmarshal(data, &gf)
	case FormatYAML:
		err = yaml.Unmarshal(data, &gf)
	default:
		return nil, fmt.Errorf("unsupported goal file format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return &gf, nil
}

// ReadGoalFile reads and parses a goal file. The format follows the extension.
func ReadGoalFile(path string) (*GoalFile, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("unsupported goal file extension: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read goal file %s: %w", path, err)
	}
	gf, err := DecodeGoalFile(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse goal file %s: %w", path, err)
	}
	if strings.TrimSpace(gf.Title) == "" {
		return nil, fmt.Errorf("invalid goal file %s: %w", path, invalid("title is required"))
	}
	return gf, nil
}

// WriteGoalFile writes gf to path, encoding by extension.
func WriteGoalFile(path string, gf *GoalFile) error {
	format, ok := FormatOf(path)
	if !ok {
		return fmt.Errorf("unsupported goal file extension: %s", path)
	}
	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(gf, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal goal file: %w", err)
		}
		buf.Write(data)
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(gf); err != nil {
			return fmt.Errorf("failed to marshal goal file: %w", err)
		}
	case FormatYAML:
		data, err := yaml.Marshal(gf)
		if err != nil {
			return fmt.Errorf("failed to marshal goal file: %w", err)
		}
		buf.Write(data)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create goal directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write goal file %s: %w", path, err)
	}
	return nil
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseTargetDate turns s into a YYYY-MM-DD date. Exact dates pass through;
// anything else goes through the natural language parser relative to now.
func ParseTargetDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout), nil
	}
	r, err := dateParser.Parse(s, now)
	if err != nil {
		return "", invalid("cannot parse target date %q: %v", s, err)
	}
	if r == nil {
		return "", invalid("cannot parse target date %q", s)
	}
	return r.Time.Format(DateLayout), nil
}
