// Package main runs the engine acceptance scenarios and exits non-zero on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/inocsim/server/internal/platform/logger"
	"github.com/inocsim/server/test"
)

func main() {
	verbose := flag.Bool("v", false, "print expected and actual values for passing scenarios")
	logLevel := flag.String("log-level", "warn", "engine log level")
	flag.Parse()

	log, err := logger.New(os.Stderr, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}

	suite := test.NewSuite(log, *verbose)
	suite.RunTest(context.Background())

	passed, failed := 0, 0
	for _, r := range suite.GetResults() {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Printf("passed: %d  failed: %d\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
