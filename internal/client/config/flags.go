package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/storyline/internal/flagx"
)

var knownFlags = []string{"-t", "-b", "-s", "-d", "-m", "-r", "-u", "-p", "-l"}

// parseFlags populates selected Config fields from command-line flags. Only
// the flags listed in knownFlags are looked at, so -c and friends pass through.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.TimelineID, "t", cfg.TimelineID, "timeline id")
	fs.StringVar(&cfg.BasePath, "b", cfg.BasePath, "base dataset file")
	fs.StringVar(&cfg.SeedPath, "s", cfg.SeedPath, "seed overrides file")
	fs.StringVar(&cfg.LocalDSN, "d", cfg.LocalDSN, "local database file")
	fs.StringVar(&cfg.Mode, "m", cfg.Mode, "mode: view or edit")
	fs.StringVar(&cfg.RemoteDriver, "r", cfg.RemoteDriver, "remote driver: none, rest or postgres")
	fs.StringVar(&cfg.RemoteURL, "u", cfg.RemoteURL, "remote REST endpoint")
	poll := fs.Int("p", int(cfg.PollInterval.Seconds()), "poll interval (in seconds)")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "p" {
			cfg.PollInterval = time.Duration(*poll) * time.Second
		}
	})
}
