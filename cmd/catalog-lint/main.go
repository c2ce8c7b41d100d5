// Package main validates journey catalog files for content authors.
//
//	catalog-lint content/journey.yaml other.yaml
//
// With no arguments it validates the catalog embedded in the binary. Every
// problem of a file is reported; the exit status is 1 when any file fails.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/titinauta/journey-engine/internal/domain/catalog"
)

func main() {
	quiet := flag.Bool("q", false, "only report failures")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-q] [catalog.yaml ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	os.Exit(lint(os.Stdout, flag.Args(), *quiet))
}

// lint validates each path (the embedded catalog when paths is empty) and
// returns the process exit code.
func lint(w io.Writer, paths []string, quiet bool) int {
	if len(paths) == 0 {
		paths = []string{""}
	}

	failed := 0
	for _, path := range paths {
		name := path
		if name == "" {
			name = "<embedded>"
		}

		cat, err := catalog.Load(path)
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s\n  %v\n", name, err)
			continue
		}
		if !quiet {
			s := cat.Stats()
			fmt.Fprintf(w, "ok   %s  modules=%d questions=%d badges=%d digest=%s\n",
				name, s.Modules, s.Questions, s.Badges, cat.Digest())
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}
