// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package databank

import (
	"bufio"
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bioflat/store"
)

// FieldInfo records a source file as it was when indexed.
type FieldInfo struct {
	Path string
	Size int64
}

// Config is a databank's metadata. It is stored as lines of
// tab-separated key and values:
//
//	index	flat/1
//	format	<name>
//	primary_namespace	<name>
//	secondary_namespaces	<name1>	<name2>...
//	field_<i>	<path>	<size>
type Config struct {
	Backend   store.Kind
	Format    string
	Primary   string
	Secondary []string
	Fields    []FieldInfo
}

// Namespaces returns the primary namespace followed by the secondary
// namespaces.
func (c *Config) Namespaces() []string {
	return append([]string{c.Primary}, c.Secondary...)
}

// Validate checks that the config is complete and consistent.
func (c *Config) Validate() error {
	if !c.Backend.Valid() {
		return errors.E(errors.NotSupported, fmt.Sprintf("unknown index backend %v", c.Backend))
	}
	if err := CheckName(c.Primary); err != nil {
		return err
	}
	seen := map[string]bool{c.Primary: true}
	for _, name := range c.Secondary {
		if err := CheckName(name); err != nil {
			return err
		}
		if seen[name] {
			return errors.E(errors.Invalid, fmt.Sprintf("namespace %q declared twice", name))
		}
		seen[name] = true
	}
	if strings.ContainsAny(c.Format, "\t\r\n") {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid format name %q", c.Format))
	}
	for _, f := range c.Fields {
		if f.Path == "" || strings.ContainsAny(f.Path, "\t\r\n") {
			return errors.E(errors.Invalid, fmt.Sprintf("invalid field path %q", f.Path))
		}
	}
	return nil
}

// Marshal returns the config's text encoding.
func (c *Config) Marshal() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "index\t%s\n", c.Backend)
	fmt.Fprintf(&b, "format\t%s\n", c.Format)
	fmt.Fprintf(&b, "primary_namespace\t%s\n", c.Primary)
	b.WriteString("secondary_namespaces")
	for _, name := range c.Secondary {
		b.WriteString("\t" + name)
	}
	b.WriteString("\n")
	for i, f := range c.Fields {
		fmt.Fprintf(&b, "field_%d\t%s\t%d\n", i, f.Path, f.Size)
	}
	return b.Bytes()
}

// Unmarshal parses a config from its text encoding. Unknown keys are
// ignored.
func Unmarshal(p []byte) (*Config, error) {
	var (
		c       = new(Config)
		fields  = make(map[int]FieldInfo)
		scanner = bufio.NewScanner(bytes.NewReader(p))
		lineno  int
		sawKind bool
	)
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		switch key := parts[0]; {
		case key == "index":
			if len(parts) != 2 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("config line %d: malformed index", lineno))
			}
			kind, err := store.ParseKind(parts[1])
			if err != nil {
				return nil, err
			}
			c.Backend = kind
			sawKind = true
		case key == "format":
			if len(parts) == 2 {
				c.Format = parts[1]
			}
		case key == "primary_namespace":
			if len(parts) != 2 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("config line %d: malformed primary_namespace", lineno))
			}
			c.Primary = parts[1]
		case key == "secondary_namespaces":
			c.Secondary = nil
			for _, name := range parts[1:] {
				if name != "" {
					c.Secondary = append(c.Secondary, name)
				}
			}
		case strings.HasPrefix(key, "field_"):
			i, err := strconv.Atoi(strings.TrimPrefix(key, "field_"))
			if err != nil || i < 0 || len(parts) != 3 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("config line %d: malformed field", lineno))
			}
			size, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil || size < 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("config line %d: malformed field size %q", lineno, parts[2]))
			}
			fields[i] = FieldInfo{Path: parts[1], Size: size}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawKind {
		return nil, errors.E(errors.Invalid, "config: missing index line")
	}
	if c.Primary == "" {
		return nil, errors.E(errors.Invalid, "config: missing primary_namespace line")
	}
	c.Fields = make([]FieldInfo, len(fields))
	for i := range c.Fields {
		f, ok := fields[i]
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("config: missing field_%d", i))
		}
		c.Fields[i] = f
	}
	return c, c.Validate()
}

// Write stores the config in dir. The file is written under a
// temporary name and renamed, so that a databank directory either
// has a complete config or none.
func (c *Config) Write(dir string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	path := ConfigPath(dir, c.Backend)
	tmp := path + ".tmp"
	if err := ioutil.WriteFile(tmp, c.Marshal(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadConfig reads the config of the databank in dir, whichever
// backend it uses.
func ReadConfig(dir string) (*Config, error) {
	for _, kind := range []store.Kind{store.Flat, store.BTree} {
		p, err := ioutil.ReadFile(ConfigPath(dir, kind))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c, err := Unmarshal(p)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("databank %s", dir))
		}
		if c.Backend != kind {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("databank %s: config file for %v declares backend %v", dir, kind, c.Backend))
		}
		return c, nil
	}
	return nil, errors.E(errors.NotExist, fmt.Sprintf("databank %s: no config", dir))
}
