package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/services"
	"github.com/desertthunder/mlsync/internal/shared"
	"github.com/desertthunder/mlsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	roster     services.RosterService
	audience   services.AudienceService
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Roster and Audience are normally built from the config by [Runner.Configure].
type RunnerOpts struct {
	Config   *shared.Config
	Roster   services.RosterService
	Audience services.AudienceService
	Logger   *log.Logger
	Output   io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:   opts.Config,
		roster:   opts.Roster,
		audience: opts.Audience,
		logger:   opts.Logger,
		output:   opts.Output,
	}
}

// Configure loads the config file named by --config, applies credential flags and
// builds the service clients. It runs before every command.
//
// A missing file keeps the embedded defaults so that `setup config` can create it.
func (r *Runner) Configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.logger.Debug("loaded config", "path", r.configPath, "campaigns", len(config.Campaigns))
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		if err := shared.ApplyEnv(r.config); err != nil {
			return ctx, err
		}
	}

	if token := cmd.String("synapse-token"); token != "" {
		r.config.Credentials.Synapse.AccessToken = token
	}
	if key := cmd.String("mailchimp-key"); key != "" {
		r.config.Credentials.MailChimp.APIKey = key
	}

	r.connect()
	return ctx, nil
}

// connect builds any service client not already provided.
//
// Missing credentials are not an error here; commands that need a client report it.
func (r *Runner) connect() {
	creds := r.config.Credentials
	rps := r.config.Sync.RequestsPerSecond

	if r.roster == nil {
		svc, err := services.NewSynapseService(creds.Synapse.BaseURL, creds.Synapse.AccessToken, services.NewLimiter(rps))
		if err != nil {
			r.logger.Debug("roster service not configured", "error", err)
		} else {
			r.roster = svc
		}
	}

	if r.audience == nil {
		svc, err := services.NewMailChimpService(creds.MailChimp.APIKey, creds.MailChimp.BaseURL, services.NewLimiter(rps))
		if err != nil {
			r.logger.Debug("audience service not configured", "error", err)
		} else {
			r.audience = svc
		}
	}
}

func (r *Runner) requireRoster() error {
	if r.roster == nil {
		return fmt.Errorf("%w: set credentials.synapse.access_token or SYNAPSE_ACCESS_TOKEN", shared.ErrMissingCredentials)
	}
	return nil
}

func (r *Runner) requireAudience() error {
	if r.audience == nil {
		return fmt.Errorf("%w: set credentials.mailchimp.api_key or MAILCHIMP_API_KEY", shared.ErrMissingCredentials)
	}
	return nil
}

// campaigns maps the configured campaign table to domain campaigns, keeping only ids when given.
func (r *Runner) campaigns(ids []string) ([]models.Campaign, error) {
	known := make([]string, 0, len(r.config.Campaigns))
	campaigns := make([]models.Campaign, 0, len(r.config.Campaigns))
	for _, c := range r.config.Campaigns {
		known = append(known, c.ID)
		if len(ids) > 0 && !slices.Contains(ids, c.ID) {
			continue
		}
		campaigns = append(campaigns, models.Campaign{
			ID:                c.ID,
			ApprovedGroupIDs:  slices.Clone(c.ApprovedGroupIDs),
			RegisteredGroupID: c.RegisteredGroupID,
			ApprovedListID:    c.ApprovedListID,
			UnapprovedListID:  c.UnapprovedListID,
		})
	}

	for _, id := range ids {
		if !slices.Contains(known, id) {
			return nil, fmt.Errorf("%w: unknown campaign %q", shared.ErrInvalidArgument, id)
		}
	}
	if len(campaigns) == 0 {
		return nil, fmt.Errorf("%w: no campaigns configured", shared.ErrMissingConfig)
	}
	return campaigns, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, campaignsCommand, audienceCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	rule := ui.Styles.Rule("═══════════════════════════════════════")
	r.writePlain("%s\n", rule)
	r.writePlain("%s\n", ui.Styles.Title(title))
	r.writePlain("%s\n", rule)
}
