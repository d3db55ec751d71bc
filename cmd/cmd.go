// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
		&cli.StringFlag{
			Name:    "synapse-token",
			Usage:   "Synapse personal access token",
			Sources: cli.EnvVars("SYNAPSE_ACCESS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "mailchimp-key",
			Usage:   "MailChimp API key (<key>-<dc>)",
			Sources: cli.EnvVars("MAILCHIMP_API_KEY"),
		},
	}
}

// syncCommand reconciles campaigns against their mailing lists
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile roster groups with mailing lists",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Sync configured campaigns",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "campaign",
						Usage: "Campaign ID to sync (repeatable, defaults to all)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Compute batches without changing any list",
					},
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "Do not record the run in the history database",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Report format (json, csv, txt)",
						Value:   "txt",
					},
					&cli.StringFlag{
						Name:    "report",
						Aliases: []string{"o"},
						Usage:   "Also write the report to this file",
					},
				},
				Action: r.SyncRun,
			},
		},
	}
}

// campaignsCommand inspects the configured campaign table
func campaignsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "campaigns",
		Usage: "Inspect configured campaigns",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List campaigns and their groups and lists",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CampaignsList,
			},
			{
				Name:  "check",
				Usage: "Validate campaigns and resolve every roster group",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "campaign",
						Usage: "Campaign ID to check (repeatable, defaults to all)",
					},
				},
				Action: r.CampaignsCheck,
			},
		},
	}
}

// audienceCommand reads mailing list state
func audienceCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "audience",
		Usage: "Mailing list operations",
		Commands: []*cli.Command{
			{
				Name:  "snapshot",
				Usage: "Print the active (subscribed or unsubscribed) emails of a list",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "list",
						Aliases:  []string{"l"},
						Usage:    "Mailing list ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AudienceSnapshot,
			},
		},
	}
}

// historyCommand lists recorded sync runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded sync runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "campaign",
				Usage: "Only show runs for this campaign",
			},
			&cli.StringFlag{
				Name:  "run",
				Usage: "Only show campaigns of this run ID",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records to show",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create configuration and initialize the history database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the embedded template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the history database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
