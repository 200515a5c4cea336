// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import "github.com/terraindex/gridstore/format"

// ErrCorruptRecord is returned whenever the codec, the checksum, or a
// scanned key fails to parse as well-formed GridStore data (spec.md §7's
// CorruptRecord/KeyMismatch kinds are both surfaced through this one
// sentinel). It is never panicked.
var ErrCorruptRecord = format.ErrCorruptRecord
