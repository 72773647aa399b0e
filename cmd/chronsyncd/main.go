package main

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
	"github.com/matheus3301/chronsync/internal/daemon"
	"github.com/matheus3301/chronsync/internal/profile"
	"go.uber.org/fx"
)

type options struct {
	Profile string `long:"profile" short:"p" description:"Profile name (overrides config default)"`
	Socket  string `long:"socket" description:"Control socket path (default: inside the profile directory)"`
}

func main() {
	var opts options
	if _, err := goflags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	profileName := profile.Resolve(opts.Profile)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, SocketPath: opts.Socket}),
	)

	app.Run()
}
