// Package cli implements chronsyncctl, the command-line front end of the
// chronsyncd daemon.
package cli

import (
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status    *StatusCommand
	Sync      *SyncCommand
	History   *HistoryCommand
	Visit     *VisitCommand
	Delete    *DeleteCommand
	Content   *ContentCommand
	Devices   *DevicesCommand
	Conflicts *ConflictsCommand
	Pair      *PairCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(out io.Writer, dial dialFunc) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags
	env := &base{globals: &globals, out: out, dial: dial}

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "chronsyncctl"
	parser.LongDescription = "Control a chronsyncd daemon: inspect and edit history, trigger sync, pair devices."

	cmds := &commands{
		Status:    &StatusCommand{base: env},
		Sync:      &SyncCommand{base: env},
		History:   &HistoryCommand{base: env},
		Visit:     &VisitCommand{base: env},
		Delete:    &DeleteCommand{base: env},
		Content:   &ContentCommand{base: env},
		Devices:   &DevicesCommand{base: env},
		Conflicts: &ConflictsCommand{base: env},
		Pair:      &PairCommand{base: env},
	}

	parser.AddCommand("status", "Show daemon and sync status", "Show the profile, device, sync state and store counts.", cmds.Status)
	parser.AddCommand("sync", "Run a sync cycle now", "Run a sync cycle now. --full ignores the checkpoint and asks for the whole history.", cmds.Sync)
	parser.AddCommand("history", "List history entries", "List history entries, newest visit first.", cmds.History)
	parser.AddCommand("visit", "Record a visit", "Record a visit as if the browser had reported it.", cmds.Visit)
	parser.AddCommand("delete", "Delete an entry", "Delete an entry. The deletion propagates to other devices.", cmds.Delete)
	parser.AddCommand("content", "Attach page content to an entry", "Attach extracted page content and a summary to an entry.", cmds.Content)
	parser.AddCommand("devices", "List known devices", "List every device that has synced, most recently seen first.", cmds.Devices)
	parser.AddCommand("conflicts", "List resolved conflicts", "List merge decisions that needed a tie-break.", cmds.Conflicts)
	parser.AddCommand("pair", "Pair devices with a hub", "On the hub, print a pairing URI and QR code. On a device, --accept writes the URI into the profile config.", cmds.Pair)

	return parser, &globals, cmds
}

// Run is the main entry point for chronsyncctl using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// --version is valid without a subcommand.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("chronsyncctl %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(os.Stdout, dialSocket)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}
	return nil
}
