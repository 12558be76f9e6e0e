package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand. It returns the exit
// status for the process.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) int {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(out)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		fmt.Fprintf(out, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer database.Close()

	migrations := MigrationsFS()
	switch action := args[0]; action {
	case "up":
		err = database.MigrateUp(migrations)
	case "down":
		err = database.MigrateDown(migrations)
	case "status":
		err = printStatus(out, database)
		if err == nil {
			return 0
		}
	case "version", "force":
		if len(args) < 2 {
			fmt.Fprintf(out, "Usage: tagview migrate %s <version_number>\n", action)
			return 1
		}
		v, perr := strconv.Atoi(args[1])
		if perr != nil || v < 0 {
			fmt.Fprintf(out, "Invalid version number: %s\n", args[1])
			return 1
		}
		if action == "version" {
			err = database.MigrateTo(migrations, uint(v))
		} else {
			err = database.MigrateForce(migrations, v)
		}
	default:
		fmt.Fprintf(out, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(out)
		return 1
	}
	if err != nil {
		fmt.Fprintf(out, "Migration %s failed: %v\n", args[0], err)
		return 1
	}

	version, dirty, _ := database.MigrateVersion(migrations)
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	return 0
}

func printStatus(out io.Writer, database *DB) error {
	migrations := MigrationsFS()
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	latest, err := LatestVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest version: %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(out, "A migration failed mid-execution. Inspect the database, then run: tagview migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: tagview migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show the current and latest schema version
  version <n>        Migrate up or down to version n
  force <n>          Set the version without running migrations
  help               Show this help
`)
}
