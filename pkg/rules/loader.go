package rules

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/d-bohls/gmail-filters-curator/pkg/xmltree"
)

var (
	// ErrInvalidRule reports a rule file that fails schema validation
	// or compiles to an ill-formed assertion.
	ErrInvalidRule = errors.New("invalid rule set")

	// ErrUnsupportedVersion reports a rule file whose declared version
	// is outside the supported range.
	ErrUnsupportedVersion = errors.New("unsupported rule set version")
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://gmail-filters-curator.schemas.local/rules.schema.json"

// supportedVersions gates rule files to the 1.x format.
var supportedVersions = mustConstraint("^1")

var fileSchema = mustCompileSchema()

func mustConstraint(expr string) *semver.Constraints {
	c, err := semver.NewConstraint(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		panic(err)
	}
	return schema
}

// fileSet mirrors the rule file layout before compilation. Rule keys
// use Clark notation, {namespace}local.
type fileSet struct {
	Version       string                     `json:"version"`
	Rules         map[string]fileElementRule `json:"rules"`
	IgnoredLabels []string                   `json:"ignored_labels"`
}

type fileElementRule struct {
	Text       *fileAssertion           `json:"text"`
	Properties map[string]fileAssertion `json:"properties"`
}

type fileAssertion struct {
	Op     string   `json:"op"`
	Value  string   `json:"value"`
	Values []string `json:"values"`
}

// Load reads, validates, and compiles a rule set file. The format is
// chosen by extension: .json, .yaml, or .yml.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	data := raw
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
	case ".yaml", ".yml":
		if data, err = yamlToJSON(raw); err != nil {
			return nil, fmt.Errorf("rules: parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("rules: %s: unsupported rule file extension %q", path, ext)
	}

	set, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}

	sum := sha256.Sum256(raw)
	set.Checksum = hex.EncodeToString(sum[:])
	return set, nil
}

// yamlToJSON re-encodes a YAML rule file as JSON so the same schema
// check and decoder serve both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func parse(data []byte) (*Set, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	if err := fileSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	var fs fileSet
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("decode rule file: %w", err)
	}

	version, err := semver.NewVersion(fs.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidRule, fs.Version, err)
	}
	if !supportedVersions.Check(version) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, fs.Version)
	}

	byKind := make(map[xml.Name]ElementRule, len(fs.Rules))
	for key, fr := range fs.Rules {
		name, err := xmltree.ParseClark(key)
		if err != nil {
			return nil, fmt.Errorf("%w: rule key %q: %v", ErrInvalidRule, key, err)
		}

		var rule ElementRule
		if fr.Text != nil {
			rule.Text = &Assertion{Op: Op(fr.Text.Op), Value: fr.Text.Value, Values: fr.Text.Values}
		}
		if len(fr.Properties) > 0 {
			rule.Properties = make(map[string]Assertion, len(fr.Properties))
			for pname, pa := range fr.Properties {
				rule.Properties[pname] = Assertion{Op: Op(pa.Op), Value: pa.Value, Values: pa.Values}
			}
		}
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, key, err)
		}
		byKind[name] = rule
	}

	set := &Set{
		Version: fs.Version,
		rules:   byKind,
		ignored: make(map[string]struct{}, len(fs.IgnoredLabels)),
	}
	for _, label := range fs.IgnoredLabels {
		set.ignored[label] = struct{}{}
	}
	return set, nil
}
