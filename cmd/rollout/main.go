/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the rollout CLI: it reads a batch of image update
// requests, processes each against the deployment repository, and prints a
// per-coordinate outcome summary. The process exits nonzero when any
// coordinate fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/sethvargo/go-envconfig"
	"github.com/tenantops/rollout/coordinate"
	"github.com/tenantops/rollout/hosting"
	"github.com/tenantops/rollout/updater"
	"github.com/tenantops/rollout/workspace"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

// version is set by goreleaser at build time.
var version = "dev"

type config struct {
	// Repository identity, applied to every hosting call.
	GithubOwner string `env:"GITHUB_OWNER,required"`
	GithubRepo  string `env:"GITHUB_REPO,required"`
	BaseBranch  string `env:"BASE_BRANCH,default=main"`

	// RemoteURL overrides the clone URL derived from owner/repo. Mostly
	// useful for mirrors and tests.
	RemoteURL string `env:"REMOTE_URL"`

	// Identity is the commit author and the namespace operators see in
	// branch names and PR narration.
	Identity string `env:"ROLLOUT_IDENTITY,default=rollout-bot"`

	// Authentication: either a personal access token, or a GitHub App
	// installation (which wins when fully configured).
	GithubToken       string `env:"GITHUB_TOKEN"`
	AppID             int64  `env:"GITHUB_APP_ID"`
	AppInstallationID int64  `env:"GITHUB_APP_INSTALLATION_ID"`
	AppPrivateKey     string `env:"GITHUB_APP_PRIVATE_KEY"`
}

type cliFlags struct {
	BatchFile string
	Workers   int
	DryRun    bool
	Version   bool
}

// errBatchFailed marks a run where at least one coordinate failed; it maps
// to a nonzero exit status without extra narration (the summary already
// told the story).
var errBatchFailed = errors.New("one or more updates failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if !errors.Is(err, errBatchFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("rollout", flag.ContinueOnError)
	fs.StringVar(&flags.BatchFile, "batch", "", "path to the YAML batch file of update requests")
	fs.IntVar(&flags.Workers, "workers", 1, "concurrent workers; above 1 each worker gets its own clone and processing order is no longer input order")
	fs.BoolVar(&flags.DryRun, "dry-run", false, "compute and report changes without pushing, opening, or merging anything")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}
	if flags.BatchFile == "" {
		return errors.New("-batch is required")
	}

	log := clog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx = clog.WithLogger(ctx, log)

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	reqs, err := loadBatch(flags.BatchFile)
	if err != nil {
		return err
	}
	log.Infof("Loaded %d update request(s) from %s", len(reqs), flags.BatchFile)

	tokenSource, httpClient, err := newAuth(ctx, cfg)
	if err != nil {
		return err
	}

	remoteURL := cfg.RemoteURL
	if remoteURL == "" {
		remoteURL = fmt.Sprintf("https://github.com/%s/%s", cfg.GithubOwner, cfg.GithubRepo)
	}

	manager, err := workspace.New(ctx, remoteURL, cfg.BaseBranch, tokenSource, cfg.Identity)
	if err != nil {
		return fmt.Errorf("creating workspace manager: %w", err)
	}

	host, err := hosting.NewClient(github.NewClient(httpClient), cfg.GithubOwner, cfg.GithubRepo, cfg.BaseBranch)
	if err != nil {
		return fmt.Errorf("creating hosting client: %w", err)
	}

	var opts []updater.Option
	if flags.DryRun {
		log.Infof("Dry run: no branches will be pushed and no pull requests touched")
		opts = append(opts, updater.WithDryRun())
	}

	runner := updater.NewBatchRunner(
		updater.NewCoordinator(host, opts...),
		func(ctx context.Context) (updater.Lease, error) {
			lease, err := manager.Lease(ctx)
			if err != nil {
				return nil, err
			}
			return lease, nil
		},
		updater.WithWorkers(flags.Workers),
	)

	outcomes := runner.Run(ctx, reqs)

	if err := updater.WriteSummary(os.Stdout, outcomes); err != nil {
		log.Warnf("Writing summary: %v", err)
	}

	if updater.AnyFailed(outcomes) {
		return errBatchFailed
	}
	return nil
}

// batchFile is the on-disk shape of a batch of update requests.
type batchFile struct {
	Updates []coordinate.UpdateRequest `yaml:"updates"`
}

func loadBatch(path string) ([]coordinate.UpdateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var batch batchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing batch file %s: %w", path, err)
	}
	if len(batch.Updates) == 0 {
		return nil, fmt.Errorf("batch file %s contains no updates", path)
	}

	for i, req := range batch.Updates {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("batch file %s, update %d: %w", path, i+1, err)
		}
	}
	return batch.Updates, nil
}

// newAuth builds the git token source and the hosting HTTP client from the
// configured credentials. A fully configured GitHub App installation takes
// precedence over a personal access token.
func newAuth(ctx context.Context, cfg config) (oauth2.TokenSource, *http.Client, error) {
	if cfg.AppID != 0 && cfg.AppInstallationID != 0 && cfg.AppPrivateKey != "" {
		itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, cfg.AppID, cfg.AppInstallationID, cfg.AppPrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("configuring GitHub App auth: %w", err)
		}
		return &installationTokenSource{transport: itr}, &http.Client{Transport: itr}, nil
	}

	if cfg.GithubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GithubToken})
		return ts, oauth2.NewClient(ctx, ts), nil
	}

	return nil, nil, errors.New("no credentials: set GITHUB_TOKEN or the GITHUB_APP_* variables")
}

// installationTokenSource adapts a ghinstallation transport to
// oauth2.TokenSource so go-git can push with installation tokens.
type installationTokenSource struct {
	transport *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.transport.Token(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token}, nil
}
