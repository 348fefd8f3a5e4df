package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"classroom-stream/origin/internal/domain"
	"classroom-stream/origin/internal/store"
)

// Version is the build version, overridable via -ldflags.
var Version = "dev"

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled, so main() can fall through to serving when it wasn't.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("originserver %s\n", Version)
		return true
	case "recordings":
		return cliRecordings(dbPath)
	case "audit":
		return cliAudit(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	default:
		return false
	}
}

func cliRecordings(dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	entries, err := st.ListRecordings(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No recordings found.")
		return true
	}
	for _, e := range entries {
		fmt.Printf("  %s  [%s] started=%s stopped=%s size=%d\n",
			e.StreamKey, e.Path, e.StartedAt.Format("2006-01-02 15:04:05"), e.StoppedAt.Format("15:04:05"), e.SizeBytes)
	}
	return true
}

func cliAudit(args []string, dbPath string) bool {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: originserver audit <stream-key>\n")
		os.Exit(1)
	}

	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	entries, err := st.AuditLog(context.Background(), domain.StreamKey(args[0]), 100)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(out))
	return true
}

func cliBackup(args []string, dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	outPath := "origin-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}

	if err := st.Backup(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database backed up to %s\n", outPath)
	return true
}
