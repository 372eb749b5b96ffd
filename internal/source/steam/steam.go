// Package steam implements source.Source on top of the public steamcmd info
// API (metadata) and the steamcmd binary (downloads).
package steam

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"branchwatch/internal/branch"
	"branchwatch/internal/source"
	logx "branchwatch/pkg/logx"
)

const (
	DefaultInfoURL = "https://api.steamcmd.net/v1/info/%d"
	maxInfoBody    = 8 << 20
)

type Config struct {
	// InfoURL is a fmt template receiving the app id.
	InfoURL      string
	SteamCMDPath string
	HTTPTimeout  time.Duration
	// DownloadTimeout bounds a single Materialize call; 0 disables it.
	DownloadTimeout time.Duration
	// Login defaults to "anonymous".
	Login string
}

// Runner executes steamcmd. Tests replace it.
type Runner func(ctx context.Context, name string, args []string, out io.Writer) error

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	log     logx.Logger
	http    *http.Client
	limiter *rate.Limiter
	run     Runner

	dlMu sync.Mutex // steamcmd does not like parallel installs
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

func WithRunner(r Runner) Option { return func(cl *Client) { cl.run = r } }

func New(cfg Config, log logx.Logger, opts ...Option) *Client {
	if strings.TrimSpace(cfg.InfoURL) == "" {
		cfg.InfoURL = DefaultInfoURL
	}
	if strings.TrimSpace(cfg.SteamCMDPath) == "" {
		cfg.SteamCMDPath = "steamcmd"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Login) == "" {
		cfg.Login = "anonymous"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		run:     execRunner,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ source.Source = (*Client)(nil)

func (c *Client) FetchBranches(ctx context.Context, appID int) ([]branch.Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	url := fmt.Sprintf(c.cfg.InfoURL, appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInfoBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", source.ErrUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: app info http=%d", source.ErrUnavailable, resp.StatusCode)
	}

	recs, err := decodeBranches(body, appID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	c.log.Debug("app info fetched", logx.Int("app", appID), logx.Int("branches", len(recs)), logx.Duration("took", time.Since(start)))
	return recs, nil
}

func (c *Client) Materialize(ctx context.Context, appID int, branchName, dest string, opt source.MaterializeOptions) error {
	c.dlMu.Lock()
	defer c.dlMu.Unlock()

	if c.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DownloadTimeout)
		defer cancel()
	}

	args := installArgs(c.cfg.Login, appID, dest, opt)
	log := c.log.With(logx.String("branch", branchName), logx.Int("app", appID))
	log.Info("steamcmd install started", logx.String("dest", dest))

	start := time.Now()
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				log.Debug("steamcmd", logx.String("out", line))
			}
		}
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := c.run(ctx, c.cfg.SteamCMDPath, args, pw)
	_ = pw.Close()
	<-done
	if err != nil {
		return fmt.Errorf("%w: steamcmd %s: %v", source.ErrUnavailable, branchName, err)
	}
	log.Info("steamcmd install finished", logx.Duration("took", time.Since(start)))
	return nil
}

// installArgs builds a steamcmd script line, e.g.
//
//	+force_install_dir /x +login anonymous +app_update 881100 -beta noitabeta validate +quit
func installArgs(login string, appID int, dest string, opt source.MaterializeOptions) []string {
	args := []string{"+force_install_dir", dest, "+login", login, "+app_update", strconv.Itoa(appID)}
	if b := strings.TrimSpace(opt.Beta); b != "" {
		args = append(args, "-beta", b)
	}
	if opt.Validate {
		args = append(args, "validate")
	}
	return append(args, "+quit")
}

func execRunner(ctx context.Context, name string, args []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	err := cmd.Run()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("exit code %d", ee.ExitCode())
	}
	return err
}
