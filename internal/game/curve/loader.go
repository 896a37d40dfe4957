package curve

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// rowDef is the YAML form of one curve row.
type rowDef struct {
	Name   string `yaml:"name"`
	Interp Interp `yaml:"interp"`
	Keys   []Key  `yaml:"keys"`
}

type tableDef struct {
	Rows []rowDef `yaml:"rows"`
}

// ParseYAML parses a curve table document:
//
//	rows:
//	  - name: Character1.MaxHealth
//	    interp: linear
//	    keys:
//	      - {level: 1, value: 100}
//
// Postcondition: Returns the parsed rows or an error naming the offending row.
func ParseYAML(data []byte) (map[string]*Curve, error) {
	var def tableDef
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing curve table: %w", err)
	}
	rows := make(map[string]*Curve, len(def.Rows))
	for _, r := range def.Rows {
		if r.Name == "" {
			return nil, fmt.Errorf("curve row: name must not be empty")
		}
		if _, dup := rows[r.Name]; dup {
			return nil, fmt.Errorf("curve row %q: duplicate row", r.Name)
		}
		for _, k := range r.Keys {
			if !finite(k.Level) || !finite(k.Value) {
				return nil, fmt.Errorf("curve row %q: non-finite key", r.Name)
			}
		}
		c, err := New(r.Interp, r.Keys)
		if err != nil {
			return nil, fmt.Errorf("curve row %q: %w", r.Name, err)
		}
		rows[r.Name] = c
	}
	return rows, nil
}

// ParseCSV parses a curve table exported as CSV. The header row holds the levels
// and every following row holds a row name followed by one value per level:
//
//	Name,1,2,3
//	Character1.MaxHealth,100,120,145
//
// Empty cells are skipped. Rows use Linear interpolation.
func ParseCSV(r io.Reader) (map[string]*Curve, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading curve csv: %w", err)
	}
	if len(records) == 0 {
		return map[string]*Curve{}, nil
	}
	header := records[0]
	levels := make([]float64, len(header))
	for i := 1; i < len(header); i++ {
		lvl, err := strconv.ParseFloat(strings.TrimSpace(header[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("curve csv header column %d: %w", i, err)
		}
		levels[i] = lvl
	}

	rows := make(map[string]*Curve, len(records)-1)
	for _, rec := range records[1:] {
		name := strings.TrimSpace(rec[0])
		if name == "" {
			continue
		}
		if _, dup := rows[name]; dup {
			return nil, fmt.Errorf("curve row %q: duplicate row", name)
		}
		var keys []Key
		for i := 1; i < len(rec) && i < len(levels); i++ {
			cell := strings.TrimSpace(rec[i])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("curve row %q column %d: %w", name, i, err)
			}
			keys = append(keys, Key{Level: levels[i], Value: v})
		}
		c, err := New(Linear, keys)
		if err != nil {
			return nil, fmt.Errorf("curve row %q: %w", name, err)
		}
		rows[name] = c
	}
	return rows, nil
}

// LoadFile reads a single .yaml, .yml or .csv curve table.
//
// Precondition: path must be a readable file.
// Postcondition: Returns a Table or a non-nil error.
func LoadFile(path string) (*Table, error) {
	rows, err := loadRows(path)
	if err != nil {
		return nil, err
	}
	return NewTable(rows), nil
}

// LoadDirectory merges every curve table file in dir into one Table.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a Table, or an error if any file fails to parse or two
// files define the same row.
func LoadDirectory(dir string) (*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading curve dir %q: %w", dir, err)
	}
	merged := make(map[string]*Curve)
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		rows, err := loadRows(path)
		if err != nil {
			return nil, err
		}
		for name, c := range rows {
			if _, dup := merged[name]; dup {
				return nil, fmt.Errorf("%q: curve row %q already defined", path, name)
			}
			merged[name] = c
		}
	}
	return NewTable(merged), nil
}

// Load reads path as a directory of tables or as a single table file.
func Load(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat curve table %q: %w", path, err)
	}
	if info.IsDir() {
		return LoadDirectory(path)
	}
	return LoadFile(path)
}

func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".csv":
		return true
	}
	return false
}

func loadRows(path string) (map[string]*Curve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	var rows map[string]*Curve
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		rows, err = ParseYAML(data)
	case ".csv":
		rows, err = ParseCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%q: unsupported curve table format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	return rows, nil
}
