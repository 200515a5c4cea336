// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.
package main

/*
gridstore-inspect is a small read-only tool for dumping the contents of a
GridStore file: every key, or one key's decoded entries, for operational
debugging.
*/

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/terraindex/gridstore"
)

var (
	phraseID = flag.Uint64("phrase-id", 0, "Dump the entries stored under this phrase_id with the all-languages lang_set, instead of every key")
	dumpAll  = flag.Bool("all", false, "List every key with its decoded entry count, not just the key list")
)

func usage() {
	fmt.Printf("Usage: %s [OPTIONS] path\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("Missing positional argument (path required); please check flag syntax")
	}
	ctx := vcontext.Background()

	store, err := gridstore.Open(ctx, flag.Arg(0))
	if err != nil {
		log.Panicf("opening %s: %v", flag.Arg(0), err)
	}
	defer store.Close()

	switch {
	case *phraseID != 0:
		key := gridstore.GridKey{PhraseID: uint32(*phraseID), LangSet: gridstore.LangSetAny}
		entries, ok, err := store.Get(ctx, key)
		if err != nil {
			log.Panicf("get phrase_id=%d: %v", *phraseID, err)
		}
		if !ok {
			fmt.Printf("phrase_id=%d: not found\n", *phraseID)
			return
		}
		for _, e := range entries {
			fmt.Printf("phrase_id=%d relev=%.2f score=%d x=%d y=%d id=%d source_phrase_hash=%d\n",
				*phraseID, e.Relev, e.Score, e.X, e.Y, e.ID, e.SourcePhraseHash)
		}

	case *dumpAll:
		pairs, err := store.Iter(ctx)
		if err != nil {
			log.Panicf("iter: %v", err)
		}
		for _, kv := range pairs {
			fmt.Printf("phrase_id=%d lang_set=%s entries=%d\n", kv.Key.PhraseID, kv.Key.LangSet, len(kv.Entries))
		}

	default:
		keys, err := store.Keys(ctx)
		if err != nil {
			log.Panicf("keys: %v", err)
		}
		for _, k := range keys {
			fmt.Printf("phrase_id=%d lang_set=%s\n", k.PhraseID, k.LangSet)
		}
	}

	log.Debug.Printf("exiting")
}
