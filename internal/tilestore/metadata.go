package tilestore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// MetaValue is a typed metadata scalar, tagged the way it must round-trip
// through the on-disk "key\tvalue\ttype" format.
type MetaValue struct {
	Raw  string
	Type string // "int" | "str" | "float" | "bool"
}

func (v MetaValue) Int() (int64, bool) {
	if v.Type != "int" {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Raw, 10, 64)
	return n, err == nil
}

func (v MetaValue) Float() (float64, bool) {
	if v.Type != "float" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.Raw, 64)
	return f, err == nil
}

func (v MetaValue) Bool() (bool, bool) {
	if v.Type != "bool" {
		return false, false
	}
	b, err := strconv.ParseBool(v.Raw)
	return b, err == nil
}

func (v MetaValue) String() string { return v.Raw }

func intValue(n int64) MetaValue  { return MetaValue{Raw: strconv.FormatInt(n, 10), Type: "int"} }
func strValue(s string) MetaValue { return MetaValue{Raw: s, Type: "str"} }
func boolValue(b bool) MetaValue  { return MetaValue{Raw: strconv.FormatBool(b), Type: "bool"} }
func floatValue(f float64) MetaValue {
	return MetaValue{Raw: strconv.FormatFloat(f, 'g', -1, 64), Type: "float"}
}

// Metadata is the parsed record for one media_id. Required fields are
// promoted to typed accessors; everything else (including unknown keys
// preserved across a rewrite) lives in Fields.
type Metadata struct {
	Fields map[string]MetaValue
}

func newMetadata() Metadata {
	return Metadata{Fields: make(map[string]MetaValue)}
}

func (m Metadata) Width() int       { n, _ := m.Fields["width"].Int(); return int(n) }
func (m Metadata) Height() int      { n, _ := m.Fields["height"].Int(); return int(n) }
func (m Metadata) TileSize() int    { n, _ := m.Fields["tilesize"].Int(); return int(n) }
func (m Metadata) FileExt() string  { return m.Fields["file_ext"].String() }
func (m Metadata) MaxLevel() int    { n, _ := m.Fields["max_level"].Int(); return int(n) }
func (m Metadata) Tiled() bool      { b, _ := m.Fields["tiled"].Bool(); return b }
func (m Metadata) AspectRatio() (float64, bool) {
	return m.Fields["aspect_ratio"].Float()
}

// parseMetadata decodes the tab-separated "key\tvalue\ttype" format.
func parseMetadata(r io.Reader) (Metadata, error) {
	meta := newMetadata()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := splitTabFields(text)
		if len(fields) != 3 {
			return Metadata{}, fmt.Errorf("tilestore: malformed metadata line %d: %q", line, text)
		}
		meta.Fields[fields[0]] = MetaValue{Raw: fields[1], Type: fields[2]}
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, fmt.Errorf("tilestore: %w", err)
	}
	return meta, nil
}

func splitTabFields(s string) []string {
	var fields []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\t' {
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	fields = append(fields, s[start:])
	return fields
}

func writeMetadata(w io.Writer, meta Metadata) error {
	bw := bufio.NewWriter(w)
	for key, val := range meta.Fields {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\n", key, val.Raw, val.Type); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// atomicWriteMetadata writes meta to a temporary file in the same directory
// as path and renames it into place, so readers never observe a partially
// written metadata file.
func atomicWriteMetadata(path string, meta Metadata) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	if err := writeMetadata(f, meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("tilestore: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("tilestore: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("tilestore: %w", err)
	}
	return nil
}
