package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/AlexTransit/kiosk/cmd/kiosk/console"
	"github.com/AlexTransit/kiosk/cmd/kiosk/run"
	"github.com/AlexTransit/kiosk/cmd/kiosk/subcmd"
	"github.com/AlexTransit/kiosk/cmd/kiosk/units"
	config_global "github.com/AlexTransit/kiosk/internal/config"
	"github.com/AlexTransit/kiosk/internal/state"
	"github.com/AlexTransit/kiosk/internal/tele"
	"github.com/AlexTransit/kiosk/log2"
)

var (
	log     = log2.NewStderr(log2.LDebug)
	modules = []subcmd.Mod{
		run.Mod,
		console.Mod,
		units.Mod,
		{Name: "version", Main: versionMain},
	}
)

var (
	BuildVersion  string = "unknown" // set by ldflags -X
	reFlagVersion        = regexp.MustCompile("-?-?version")
)

func main() {
	flagset := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagset.Usage = func() {
		fmt.Fprint(flagset.Output(), "Usage: [option...] command\n\nOptions:\n")
		flagset.PrintDefaults()
		commandNames := make([]string, len(modules))
		for i, m := range modules {
			commandNames[i] = m.Name
		}
		fmt.Fprintf(flagset.Output(), "Commands: %s\n", strings.Join(commandNames, " "))
	}
	configPath := flagset.String("config", "/etc/kiosk/config.hcl", "")
	onlyVersion := flagset.Bool("version", false, "print build version and exit")
	if err := flagset.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
	_ = versionMain(context.Background())
	if *onlyVersion || reFlagVersion.MatchString(flagset.Arg(0)) {
		return
	}

	mod, err := subcmd.Parse(flagset.Arg(0), modules)
	if err != nil {
		fmt.Fprintf(flagset.Output(), "command line error: %v\n\n", err)
		flagset.Usage()
		os.Exit(1)
	}
	// under systemd journal adds timestamps
	if subcmd.SdNotify("STATUS=start") {
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	config, err := config_global.ReadConfig(log, *configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, g := state.NewContext(log, tele.New())
	g.BuildVersion = BuildVersion
	g.Config = config
	log.Debugf("starting %s", flagset.Args())

	if err := mod.Main(ctx, flagset.Args()); err != nil {
		g.Log.Errorf("%v", err)
		os.Exit(1)
	}
}

func versionMain(ctx context.Context, _ ...[]string) error {
	fmt.Printf("kiosk %s\n", BuildVersion)
	return nil
}
