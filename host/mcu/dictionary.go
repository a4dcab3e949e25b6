package mcu

import (
	"fmt"
	"strings"
)

// Param is one argument of a message format
type Param struct {
	Name  string
	Bytes bool // %*s buffer argument; all others are VLQ integers
}

// MessageFormat is a command or response declared in the dictionary
type MessageFormat struct {
	ID     uint16
	Name   string
	Params []Param
}

// Dictionary is the parsed firmware dictionary
type Dictionary struct {
	byName map[string]*MessageFormat
	byID   map[uint16]*MessageFormat
}

// ParseDictionary parses the firmware dictionary: one "name arg=%fmt ..."
// line per message, the line index being the message ID
func ParseDictionary(data []byte) (*Dictionary, error) {
	dict := &Dictionary{
		byName: make(map[string]*MessageFormat),
		byID:   make(map[uint16]*MessageFormat),
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil, fmt.Errorf("line %d: empty message declaration", i)
		}

		msg := &MessageFormat{ID: uint16(i), Name: fields[0]}
		for _, field := range fields[1:] {
			name, format, ok := strings.Cut(field, "=%")
			if !ok || name == "" {
				return nil, fmt.Errorf("line %d: bad parameter %q", i, field)
			}
			msg.Params = append(msg.Params, Param{Name: name, Bytes: format == "*s"})
		}

		if _, dup := dict.byName[msg.Name]; dup {
			return nil, fmt.Errorf("line %d: duplicate message %s", i, msg.Name)
		}
		dict.byName[msg.Name] = msg
		dict.byID[msg.ID] = msg
	}
	return dict, nil
}

// Lookup returns a message by name
func (d *Dictionary) Lookup(name string) (*MessageFormat, bool) {
	msg, ok := d.byName[name]
	return msg, ok
}

// LookupID returns a message by ID
func (d *Dictionary) LookupID(id uint16) (*MessageFormat, bool) {
	msg, ok := d.byID[id]
	return msg, ok
}

// Len returns the number of declared messages
func (d *Dictionary) Len() int {
	return len(d.byID)
}

// Names returns the message names in ID order
func (d *Dictionary) Names() []string {
	names := make([]string, len(d.byID))
	for id, msg := range d.byID {
		names[id] = msg.Name
	}
	return names
}
