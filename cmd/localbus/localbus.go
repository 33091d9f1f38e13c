// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// The localbus binary is a command line client for the bus: it can
// emit events and listen for them, which is mostly useful for
// debugging the components connected to a broker.
package main // import "localbus.dev/cmd/localbus"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v3/ffcli"
	"localbus.dev/broker"
	"localbus.dev/bus"
	"localbus.dev/catalog"
	"localbus.dev/types/logger"
)

var rootArgs struct {
	emitAddr  string
	regAddr   string
	configDir string
	insecure  bool
	debug     bool
}

func main() {
	log.SetFlags(0)

	rootfs := flag.NewFlagSet("localbus", flag.ExitOnError)
	rootfs.StringVar(&rootArgs.emitAddr, "emit-addr", broker.DefaultEmitAddr, "address of the broker's ingestion endpoint")
	rootfs.StringVar(&rootArgs.regAddr, "reg-addr", broker.DefaultRegAddr, "address of the broker's broadcast endpoint")
	rootfs.StringVar(&rootArgs.configDir, "config-dir", broker.DefaultConfigDir(), "directory holding the curve key material")
	rootfs.BoolVar(&rootArgs.insecure, "insecure", false, "connect without key-pair authentication or channel encryption")
	rootfs.BoolVar(&rootArgs.debug, "debug", false, "log client internals to stderr")

	rootCmd := &ffcli.Command{
		Name:       "localbus",
		ShortUsage: "localbus [flags] <subcommand> [args]",
		ShortHelp:  "Emit bus events and listen for them.",
		FlagSet:    rootfs,
		Subcommands: []*ffcli.Command{
			listenCmd,
			emitCmd,
		},
		Exec: func(context.Context, []string) error { return flag.ErrHelp },
	}

	err := rootCmd.ParseAndRun(context.Background(), os.Args[1:])
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Fatal(err)
	}
}

func configureBus() {
	logf := logger.Discard
	if rootArgs.debug {
		logf = log.Printf
	}
	bus.Configure(bus.Options{
		EmitAddr:  rootArgs.emitAddr,
		RegAddr:   rootArgs.regAddr,
		ConfigDir: rootArgs.configDir,
		Insecure:  rootArgs.insecure,
		Logf:      logf,
	})
}

var listenCmd = &ffcli.Command{
	Name:       "listen",
	ShortUsage: "localbus listen <event>...",
	ShortHelp:  "Print every delivery of the given events until interrupted.",
	Exec:       runListen,
}

func runListen(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("listen: at least one event token required")
	}
	configureBus()
	defer bus.Shutdown()

	for _, tok := range args {
		ev := catalog.Event(tok)
		if _, err := bus.Register(ev, printEvent, nil); err != nil {
			return fmt.Errorf("listen %s: %w", tok, err)
		}
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	return nil
}

func printEvent(ev catalog.Event, args []any) {
	if len(args) == 0 {
		fmt.Println(ev)
		return
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	fmt.Printf("%s %s\n", ev, strings.Join(parts, " "))
}

var emitCmd = &ffcli.Command{
	Name:       "emit",
	ShortUsage: "localbus emit <event> [arg...]",
	ShortHelp:  "Publish one event, with any extra arguments as its content.",
	Exec:       runEmit,
}

func runEmit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("emit: event token required")
	}
	configureBus()
	defer bus.Shutdown()

	content := make([]any, len(args)-1)
	for i, s := range args[1:] {
		content[i] = s
	}
	return bus.Emit(catalog.Event(args[0]), content...)
}
