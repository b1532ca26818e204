package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ex-augmenter/internal/backfill"
	"ex-augmenter/internal/store"
	"ex-augmenter/internal/store/sqlite"
	"ex-augmenter/modules/relatedsweep"
	"ex-augmenter/pkg/augmenter"
	"ex-augmenter/pkg/slack"

	"github.com/spf13/cobra"
)

const slackTestPause = time.Second

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "augmenter",
		Short:         "Content augmentation service for the Strapi platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(flags.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", defaultEnvFile, "dotenv file loaded before configuration")

	root.AddCommand(
		newServeCommand(flags),
		newUpdateTagSummariesCommand(),
		newRunRelatedSweepCommand(flags),
		newTestSlackCommand(flags),
		newSeedCommand(flags),
	)

	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and tag summary HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath, os.LookupEnv)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runtime, err := buildRuntime(ctx, logger, cfg, runtimeOptions{
				withSweep:   cfg.sweep.enabled,
				withDrivers: true,
			})
			if err != nil {
				return err
			}

			runErr := runtime.kernel.Run(ctx)
			if errors.Is(runErr, context.Canceled) {
				runErr = nil
			}
			if runErr != nil {
				runErr = fmt.Errorf("run kernel: %w", runErr)
			}

			return errors.Join(runErr, runtime.store.Close())
		},
	}
}

func newUpdateTagSummariesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update-tag-summaries",
		Short: "Generate summaries for every tag that has none",
		Long: `Lists tags from Strapi and calls the tag summary route for each tag
without a summary. Reads STRAPI_URL, STRAPI_API_TOKEN, AUGMENTER_URL,
AUGMENTER_API_TOKEN, PAGE_SIZE, CONCURRENCY, WAIT and DRY_RUN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := backfill.ConfigFromEnv(os.LookupEnv)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			tags, err := backfill.OpenTagStore(cfg, nil)
			if err != nil {
				return err
			}
			defer tags.Close()

			report, err := backfill.NewRunner(cfg, tags, cmd.OutOrStdout()).Run(ctx)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("update tag summaries: %d of %d failed", report.Failed, report.Candidates)
			}

			return nil
		},
	}
}

func newRunRelatedSweepCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run-related-sweep",
		Short: "Refresh related articles for recently retagged articles once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath, os.LookupEnv)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runtime, err := buildRuntime(ctx, logger, cfg, runtimeOptions{withSweep: true})
			if err != nil {
				return err
			}

			result, runErr := runtime.sweep.RunOnce(ctx)
			if runErr == nil {
				printSweepResult(cmd.OutOrStdout(), result)
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.shutdownTimeout)
			defer cancel()

			return errors.Join(runErr, runtime.close(shutdownCtx))
		},
	}
}

func printSweepResult(out io.Writer, result relatedsweep.Result) {
	_, _ = fmt.Fprintf(out, "Related sweep since %s: tags=%d articles=%d succeeded=%d failed=%d\n",
		result.Since.Format(time.RFC3339), result.Tags, result.Articles, result.Succeeded, result.Failed)
}

func newTestSlackCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-slack",
		Short: "Send sample contact notifications to the configured Slack webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath, os.LookupEnv)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			notifier := slack.New(cfg.slackWebhookURL, slack.WithLogger(newLogger(cfg)))

			return runSlackSamples(cmd.Context(), cmd.OutOrStdout(), notifier, slackTestPause)
		},
	}
}

// runSlackSamples sends a general and a sponsorship contact, then shows the
// warning logged without a webhook URL.
func runSlackSamples(ctx context.Context, out io.Writer, notifier *slack.Notifier, pause time.Duration) error {
	samples := []struct {
		title   string
		contact augmenter.Contact
	}{
		{
			title: "general contact",
			contact: augmenter.Contact{
				Firstname:      "Jane",
				Lastname:       "Smith",
				Email:          "jane@example.com",
				Source:         "website",
				AdditionalInfo: "I have a question about the community",
			},
		},
		{
			title: "sponsorship inquiry",
			contact: augmenter.Contact{
				Firstname:          "John",
				Lastname:           "Doe",
				Email:              "john@acme.com",
				Source:             "sponsorship-form",
				CompanyName:        "Acme Corp",
				CompanyWebsite:     "acme.com",
				SponsorshipInquiry: true,
				BudgetRange:        "from-5000-to-10000",
				AdditionalInfo:     "Interested in sponsoring the upcoming workshop",
			},
		},
	}

	var errs []error
	for index, sample := range samples {
		contact := sample.contact
		_, _ = fmt.Fprintf(out, "Test %d: %s notification (%s)\n", index+1, sample.title, contact.Email)
		if err := notifier.NotifyContact(ctx, &contact); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sample.title, err))
		}
		if err := sleepContext(ctx, pause); err != nil {
			return errors.Join(append(errs, err)...)
		}
	}

	_, _ = fmt.Fprintln(out, "Test 3: missing webhook URL (should log a warning)")
	missing := augmenter.Contact{Firstname: "Test", Email: "test@test.com"}
	if err := notifier.WithWebhookURL("").NotifyContact(ctx, &missing); err != nil {
		errs = append(errs, fmt.Errorf("missing webhook: %w", err))
	}

	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, pause time.Duration) error {
	if pause <= 0 {
		return nil
	}
	timer := time.NewTimer(pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type seedFlags struct {
	fixture  string
	database string
}

func newSeedCommand(flags *rootFlags) *cobra.Command {
	seed := &seedFlags{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML fixture into the embedded store through the write hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath, os.LookupEnv)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.store, err = seedStoreDefinition(cfg.store, seed.database)
			if err != nil {
				return err
			}

			return runSeed(cmd.Context(), cmd.OutOrStdout(), cfg, seed.fixture)
		},
	}
	cmd.Flags().StringVar(&seed.fixture, "fixture", "", "YAML fixture file")
	cmd.Flags().StringVar(&seed.database, "database", "", "sqlite database path")
	_ = cmd.MarkFlagRequired("fixture")

	return cmd
}

// seedStoreDefinition forces the embedded store, keeping its configured
// options unless a database path overrides them.
func seedStoreDefinition(current store.Definition, database string) (store.Definition, error) {
	definition := store.Definition{Type: sqlite.StoreType}
	if current.Type == sqlite.StoreType {
		definition.Config = current.Config
	}
	if path := strings.TrimSpace(database); path != "" {
		merged, err := overlayJSON(definition.Config, map[string]string{"path": path})
		if err != nil {
			return store.Definition{}, fmt.Errorf("seed store config: %w", err)
		}
		definition.Config = merged
	}
	if len(definition.Config) == 0 {
		definition.Config = []byte(`{}`)
	}

	return definition, nil
}

func runSeed(ctx context.Context, out io.Writer, cfg appConfig, fixturePath string) error {
	fixture, err := sqlite.LoadFixture(fixturePath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	runtime, err := buildRuntime(ctx, logger, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	embedded, ok := runtime.store.(*sqlite.Store)
	if !ok {
		return errors.Join(fmt.Errorf("seed: store %T is not embedded", runtime.store), runtime.store.Close())
	}

	var seedErr error
	if err := runtime.kernel.StartModules(ctx); err != nil {
		seedErr = fmt.Errorf("start modules: %w", err)
	} else {
		result, err := embedded.Seed(ctx, fixture)
		if err != nil {
			seedErr = err
		} else {
			_, _ = fmt.Fprintf(out, "Seeded tags=%d articles=%d videos=%d pointers=%d contacts=%d\n",
				result.Tags, result.Articles, result.Videos, result.Pointers, result.Contacts)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.shutdownTimeout)
	defer cancel()

	return errors.Join(seedErr, runtime.close(shutdownCtx))
}
