// hclink assigns cgMLST isolates to their nearest reference ST and HierCC
// cluster codes, and builds the reference databases that assignment reads
// from.
//
// Usage:
//
//	hclink build --version V --api-key K --species S [--downloads DIR] [--clean]
//	hclink write-db --version V [--profiles-csv P] [--hiercc-profiles-json H] [--db-dir D]
//	hclink assign <query-path-or-'-'> [--reference-db DIR] [--num-threads N] [--batch-size B]
package main

import (
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	shutdown := grail.Init()
	defer shutdown()

	sub, args := os.Args[1], os.Args[2:]
	var err error
	switch sub {
	case "build":
		err = runBuild(args)
	case "write-db":
		err = runWriteDB(args)
	case "assign":
		err = runAssign(args)
	case "-h", "-help", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "hclink: unknown subcommand %q\n", sub)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "hclink: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage:
  hclink build --version V --api-key K --species S [--downloads DIR] [--clean]
  hclink write-db --version V [--profiles-csv P] [--hiercc-profiles-json H] [--db-dir D]
  hclink assign <query-path-or-'-'> [--reference-db DIR] [--num-threads N] [--batch-size B]
`)
}
