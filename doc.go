// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package bioflat implements key lookup indexes over large biological
	flat-file databases such as GenBank or EMBL record dumps. Given a
	key (a locus name, an accession, a GI number), bioflat returns the
	raw text of the matching records without scanning the source files.

	An index is stored in a databank: a directory holding a small text
	config and one mapping store per namespace. The primary namespace
	maps each record's unique key to the record's location (file, byte
	offset and length). Secondary namespaces map alternate identifiers
	to primary keys; several records may share a secondary key.

	Databanks are built in a single pass by package indexer (or by
	Build, which selects a registered format by name) and are read-only
	thereafter. Open returns a DB that answers queries:

		db, err := bioflat.Open(ctx, dir, bioflat.Options{Strict: true})
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close(ctx)
		records, err := db.Search(ctx, "U00096")

	Two mapping store backends are supported: sorted fixed-width flat
	files searched by binary search, and B-tree stores persisted as
	mapio maps. See package store for details.

	Record locations are valid only for the exact source files that
	were indexed. Each databank records the sizes of its source files;
	CheckConsistency reports files whose size has since changed, and a
	DB opened in strict mode refuses to read from them.
*/
package bioflat
