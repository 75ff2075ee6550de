// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

const (
	sep = "\t"
	pad = ' '
)

// CheckString returns an error if s cannot be stored as a key or
// value: stored strings may not contain tabs or newlines.
func CheckString(s string) error {
	if strings.ContainsAny(s, "\t\r\n") {
		return errors.E(errors.Invalid, fmt.Sprintf("string %q contains a tab or newline", s))
	}
	return nil
}

// EncodeRecord joins a key and its values into a single record
// string: key<TAB>value1<TAB>value2... Since records are padded with
// spaces, a record may not end in a space.
func EncodeRecord(key string, values []string) (string, error) {
	if err := CheckString(key); err != nil {
		return "", err
	}
	for _, v := range values {
		if err := CheckString(v); err != nil {
			return "", err
		}
	}
	record := key
	if len(values) > 0 {
		record += sep + strings.Join(values, sep)
	}
	if strings.HasSuffix(record, string(pad)) {
		return "", errors.E(errors.Invalid, fmt.Sprintf("record %q ends with padding", record))
	}
	return record, nil
}

// DecodeRecord splits a (possibly padded) record into its key and
// values. Trailing padding is removed.
func DecodeRecord(record string) (key string, values []string) {
	record = strings.TrimRight(record, string(pad))
	fields := strings.Split(record, sep)
	return fields[0], fields[1:]
}

// recordKey returns the key of a padded record without splitting
// its values.
func recordKey(record []byte) string {
	for i, c := range record {
		if c == '\t' {
			return string(record[:i])
		}
	}
	return strings.TrimRight(string(record), string(pad))
}
