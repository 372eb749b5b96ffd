package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"branchwatch/internal/app"
	"branchwatch/internal/config"
	"branchwatch/internal/pipeline"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to config file (json, yaml or toml)",
			Value:   "config.yaml",
			Sources: cli.EnvVars("BRANCHWATCH_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Load environment variables from this file before reading the config",
			Value: ".env",
		},
	}
}

// loadEnv reads the env file. A missing default .env is fine; a missing
// file the user asked for is not.
func loadEnv(cmd *cli.Command) error {
	path := strings.TrimSpace(cmd.String("env-file"))
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (errors.Is(err, fs.ErrNotExist) && !cmd.IsSet("env-file")) {
		return nil
	}
	return fmt.Errorf("env file %s: %w", path, err)
}

func run(ctx context.Context, cmd *cli.Command) error {
	if err := loadEnv(cmd); err != nil {
		return err
	}
	a, err := app.New(cmd.String("config"), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func once(ctx context.Context, cmd *cli.Command) error {
	if err := loadEnv(cmd); err != nil {
		return err
	}
	a, err := app.New(cmd.String("config"), app.Options{DryRun: cmd.Bool("dry-run")})
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Once(ctx)
	printReport(rep)
	return err
}

func printReport(rep pipeline.Report) {
	tw := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BRANCH\tBUILD\tCHANGE\tOUTCOME\tMESSAGES")
	for _, b := range rep.Branches {
		outcome := string(b.Outcome)
		if b.Error != "" {
			outcome += " (" + b.Error + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", b.Branch, b.BuildID, b.Change, outcome, b.Messages)
	}
	_ = tw.Flush()
}

func notes(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return errors.New("usage: branchwatch notes OLD NEW")
	}
	oldText, err := os.ReadFile(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	newText, err := os.ReadFile(cmd.Args().Get(1))
	if err != nil {
		return err
	}

	cfg := config.Default()
	if cmd.IsSet("config") {
		if err := loadEnv(cmd); err != nil {
			return err
		}
		if cfg, err = config.NewConfigManager(cmd.String("config")).Load(); err != nil {
			return err
		}
	}

	msgs, err := app.RenderNotes(cfg, string(oldText), string(newText), cmd.Bool("plain"), time.Now())
	if err != nil {
		return err
	}
	for i, m := range msgs {
		if i > 0 {
			fmt.Println("---")
		}
		fmt.Print(m)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "branchwatch",
		Usage:  "Watch Steam branches and announce release-note changes",
		Action: run,
		Flags:  commonFlags(),
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Poll on the configured schedule until interrupted",
				Flags:  commonFlags(),
				Action: run,
			},
			{
				Name:  "once",
				Usage: "Run a single pass and exit",
				Flags: append(commonFlags(), &cli.BoolFlag{
					Name:  "dry-run",
					Usage: "Skip downloads, print notifications and keep stored state unchanged",
				}),
				Action: once,
			},
			{
				Name:      "notes",
				Usage:     "Diff two release-notes files and print the result",
				ArgsUsage: "OLD NEW",
				Flags: append(commonFlags(), &cli.BoolFlag{
					Name:  "plain",
					Usage: "Print the patch-notes file rendering instead of chat markdown",
				}),
				Action: notes,
			},
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
