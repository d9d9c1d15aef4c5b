// Command shmdf publishes, consumes and inspects shared memory segments.
//
//	shmdf produce -name cam0 -width 640 -height 480 -fps 30
//	shmdf consume -name cam0
//	shmdf demo -consumers 4 -frames 100
//	shmdf inspect -name cam0
//	shmdf rm -name cam0
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gosuda.org/shmdf"
)

const version = "v0.1.0"

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, fs *flag.FlagSet, args []string, common *commonFlags) error
}

var commands = []command{
	{"produce", "publish synthetic frames", runProduce},
	{"consume", "read frames and report gaps", runConsume},
	{"demo", "run a producer and consumers in one process", runDemo},
	{"inspect", "print a segment's state as JSON", runInspect},
	{"rm", "remove a segment", runRemove},
}

type commonFlags struct {
	dir   string
	debug bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.dir, "dir", "", "segment directory (default /dev/shm)")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
}

func (c *commonFlags) options() []shmdf.Option {
	return []shmdf.Option{shmdf.WithDir(c.dir), shmdf.WithLogger(slog.Default())}
}

func (c *commonFlags) setupLogging() {
	level := slog.LevelInfo
	if c.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func usage() {
	fmt.Fprintf(os.Stderr, "shmdf %s\n\nUsage:\n  shmdf <command> [flags]\n\nCommands:\n", version)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'shmdf <command> -h' for command flags.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	if name == "version" || name == "-version" {
		fmt.Printf("shmdf %s\n", version)
		return
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}

		fs := flag.NewFlagSet(c.name, flag.ExitOnError)
		var common commonFlags
		common.register(fs)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := c.run(ctx, fs, os.Args[2:], &common)
		stop()

		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("command failed", "command", c.name, "error", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// parse parses args into fs and applies the common flags.
func parse(fs *flag.FlagSet, args []string, common *commonFlags) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.setupLogging()
	return nil
}

// requireName returns the -name flag or an error if it is empty.
func requireName(name string) (string, error) {
	if name == "" {
		return "", errors.New("-name is required")
	}
	return name, nil
}
