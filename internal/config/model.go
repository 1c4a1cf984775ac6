package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"block-occupancy/internal/occupancy"
	"block-occupancy/internal/track"
)

// Model holds the tunable constants of the occupancy model. Keys missing
// from the parameter file keep their defaults; a given list replaces the
// default list as a whole.
type Model struct {
	Occupancy   occupancy.Params   `yaml:"occupancy"`
	Corrections []track.Correction `yaml:"corrections"`
}

func DefaultModel() Model {
	return Model{
		Occupancy:   occupancy.DefaultParams(),
		Corrections: track.DefaultResolver().Corrections,
	}
}

// Resolver returns the position resolver for the model's corrections.
func (m Model) Resolver() track.Resolver {
	return track.Resolver{Corrections: m.Corrections}
}

func (m Model) Validate() error {
	if err := m.Occupancy.Validate(); err != nil {
		return fmt.Errorf("occupancy: %w", err)
	}
	if err := m.Resolver().Validate(); err != nil {
		return fmt.Errorf("corrections: %w", err)
	}
	return nil
}

// DecodeModel reads a YAML parameter document over the defaults.
func DecodeModel(r io.Reader) (Model, error) {
	m := DefaultModel()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return Model{}, fmt.Errorf("decode parameters: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// LoadModel reads the parameter file at path. An empty path yields the
// defaults.
func LoadModel(path string) (Model, error) {
	if path == "" {
		return DefaultModel(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("read parameters: %w", err)
	}
	return DecodeModel(bytes.NewReader(data))
}

// Fingerprint hashes the model together with the contents of the input files
// at paths. Results computed under different fingerprints must not be mixed.
// A missing file contributes its path only.
func (m Model) Fingerprint(paths ...string) (string, error) {
	h := sha256.New()
	b, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("fingerprint model: %w", err)
	}
	h.Write(b)
	for _, p := range paths {
		fmt.Fprintf(h, "\x00%s\x00", p)
		data, err := os.ReadFile(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return "", fmt.Errorf("fingerprint %s: %w", p, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
