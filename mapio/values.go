// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
)

func appendUvarint(p []byte, v uint64) []byte {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	return append(p, b[:n]...)
}

// appendValues appends the encoded value list to p.
func appendValues(p []byte, values []string) []byte {
	p = appendUvarint(p, uint64(len(values)))
	for _, v := range values {
		p = appendUvarint(p, uint64(len(v)))
		p = append(p, v...)
	}
	return p
}

// decodeValues decodes a value list produced by appendValues.
func decodeValues(p []byte) ([]string, error) {
	count, n := binary.Uvarint(p)
	if n <= 0 || count > uint64(len(p)) {
		return nil, errors.E(errors.Integrity, "mapio: corrupt value list header")
	}
	p = p[n:]
	values := make([]string, count)
	for i := range values {
		size, n := binary.Uvarint(p)
		if n <= 0 || size > uint64(len(p)-n) {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("mapio: corrupt value %d of %d", i, count))
		}
		values[i] = string(p[n : n+int(size)])
		p = p[n+int(size):]
	}
	if len(p) != 0 {
		return nil, errors.E(errors.Integrity, "mapio: trailing bytes in value list")
	}
	return values, nil
}
