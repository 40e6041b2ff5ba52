// Command coreengine exposes small diagnostic utilities over the library
// packages: version comparison and market-hours inspection. Wiring a full
// algorithm run additionally requires a broker, a portfolio, and an
// algorithm implementation, none of which ship here (spec.md §1 Non-goals).
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/lumenquant/coreengine/hours"
	"github.com/lumenquant/coreengine/model"
)

func main() {
	app := &cli.App{
		Name:     "coreengine",
		HelpName: "coreengine",
		Usage:    "Diagnostic utilities for the time-slice pipeline and algorithm event loop",
		Commands: []*cli.Command{
			versionCommand(),
			hoursCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:     "version",
		HelpName: "version",
		Usage:    "Compare two four-part dotted-integer versions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "a", Usage: "eg. 2.5.0.1", Required: true},
			&cli.StringFlag{Name: "b", Usage: "eg. 2.5.1.0", Required: true},
			&cli.BoolFlag{Name: "ignore-version-checks", Usage: "force comparisons to equal"},
		},
		Action: func(c *cli.Context) error {
			a := model.ParseVersion(c.String("a"))
			b := model.ParseVersion(c.String("b"))
			cmp := model.CompareVersions(a, b, c.Bool("ignore-version-checks"))
			switch {
			case cmp < 0:
				fmt.Printf("%s < %s\n", c.String("a"), c.String("b"))
			case cmp > 0:
				fmt.Printf("%s > %s\n", c.String("a"), c.String("b"))
			default:
				fmt.Printf("%s == %s\n", c.String("a"), c.String("b"))
			}
			return nil
		},
	}
}

func hoursCommand() *cli.Command {
	return &cli.Command{
		Name:     "hours",
		HelpName: "hours",
		Usage:    "Show the trading segments a market-hours entry carries for one weekday",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "path to the market-hours JSON document", Required: true},
			&cli.StringFlag{Name: "key", Usage: "eg. equity-usa-foo (lowercased securityType-market-symbol)", Required: true},
		},
		Action: func(c *cli.Context) error {
			f, err := os.Open(c.String("file"))
			if err != nil {
				return err
			}
			defer f.Close()

			db, err := hours.Parse(f)
			if err != nil {
				return err
			}
			entry, ok := db.Entry(c.String("key"))
			if !ok {
				return fmt.Errorf("coreengine: no market-hours entry for %q", c.String("key"))
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Weekday", "Start", "End", "Kind"})
			for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
				for _, seg := range entry.Week[weekday] {
					table.Append([]string{
						weekday.String(),
						formatOffset(seg.Start),
						formatOffset(seg.End),
						string(seg.Kind),
					})
				}
			}
			table.Render()
			return nil
		},
	}
}

func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
