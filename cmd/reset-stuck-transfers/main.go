// reset-stuck-transfers resets TransferRecord rows that have sat in
// Processing past a configurable threshold (a worker crashed mid-claim)
// back to PendingSubmission so a live replica can pick them back up.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"solrelay/internal/config"
	"solrelay/internal/db"
	"solrelay/internal/repository"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	threshold := flag.Duration("threshold", 10*time.Minute, "reset rows stuck in Processing longer than this")
	dryRun := flag.Bool("dry-run", false, "print the threshold that would be applied without resetting any rows")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	gormDB, err := db.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	repo := repository.NewTransferRepository(gormDB)

	if *dryRun {
		// ResetStuckProcessing is inherently a write; dry-run reports
		// the threshold that would be applied and asks the operator to
		// re-run without -dry-run once satisfied.
		fmt.Printf("dry run: would reset transfer_records stuck in Processing for more than %s\n", *threshold)
		return
	}

	fmt.Printf("about to reset transfer_records stuck in Processing for more than %s\n", *threshold)
	fmt.Print("type \"yes\" to continue: ")
	reader := bufio.NewReader(os.Stdin)
	confirmation, _ := reader.ReadString('\n')
	if trimmed := trimNewline(confirmation); trimmed != "yes" {
		fmt.Println("aborted")
		return
	}

	n, err := repo.ResetStuckProcessing(*threshold)
	if err != nil {
		log.Fatalf("reset stuck rows: %v", err)
	}
	fmt.Printf("reset %d row(s) to pending_submission\n", n)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
