package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// varRef matches ${NAME} and ${NAME:-fallback}.
var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

const fileHeader = "# daybook configuration, written by \"daybook config init\".\n" +
	"# Settings left out take their built-in defaults when the daemon starts.\n"

// Load reads the YAML file at path, substitutes ${VAR} references from the
// environment, rejects unknown keys and fills in defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML the way Load does.
func Parse(raw []byte) (*Config, error) {
	expanded, err := substitute(raw, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// substitute resolves variable references line by line. References inside
// a trailing "# ..." comment are left alone, so a commented-out setting
// never needs its variable. Every unset variable without a fallback is
// reported with its line number.
func substitute(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var (
		out  bytes.Buffer
		errs []error
	)
	for i, line := range bytes.SplitAfter(raw, []byte("\n")) {
		body, comment := splitComment(line)
		body = varRef.ReplaceAllFunc(body, func(ref []byte) []byte {
			m := varRef.FindSubmatch(ref)
			if v, ok := lookup(string(m[1])); ok {
				return []byte(v)
			}
			if m[2] != nil {
				return m[2]
			}
			errs = append(errs, fmt.Errorf("line %d: variable %s is not set", i+1, m[1]))
			return ref
		})
		out.Write(body)
		out.Write(comment)
	}
	return out.Bytes(), errors.Join(errs...)
}

// splitComment cuts line at a "#" that starts a YAML comment: at the start
// of the line or after whitespace, outside quotes.
func splitComment(line []byte) (body, comment []byte) {
	var quote byte
	for i, c := range line {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t'):
			return line[:i], line[i:]
		}
	}
	return line, nil
}

// Marshal encodes cfg with a two-space indent under a short header. Zero
// values are omitted, so the file only carries what was chosen.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encoding: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encoding: %w", err)
	}
	return buf.Bytes(), nil
}
