package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/AnEntrypoint/sequential-gui/internal/graph"
	"github.com/AnEntrypoint/sequential-gui/internal/tui"
	"github.com/AnEntrypoint/sequential-gui/internal/watch"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		serverURL string
		task      string
		topics    []string
		logFile   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of runs and graphs over the push channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if serverURL == "" {
				serverURL = defaultServerURL(a.cfg.Addr)
			}
			if logFile == "" {
				logFile = filepath.Join(a.cfg.EcosystemPath, ".seqgui", "watch.log")
			}
			return runWatch(cmd.Context(), a, serverURL, task, topics, logFile)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server websocket URL (default ws://localhost<addr>/ws)")
	cmd.Flags().StringVarP(&task, "task", "t", "", "only show events for this task")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "only these topics: run, log, artifact, task")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log destination; the terminal belongs to the dashboard")
	return cmd
}

// runWatch runs the dashboard until the user quits or ctx is cancelled.
func runWatch(ctx context.Context, a *app, serverURL, task string, topics []string, logFile string) error {
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()
	logger := newLogger(a.cfg.Log.Level, a.cfg.Log.Format, f)

	client, err := watch.New(watch.Options{
		URL:    serverURL,
		Task:   task,
		Topics: topics,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan watch.Update, 256)
	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		_ = client.Run(ctx, updates)
	}()

	loader := httpGraphLoader(&http.Client{Timeout: 10 * time.Second}, apiBase(client.URL()))
	model := tui.New(updates, loader, client.URL(), task)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err = <-errChan:
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		p.Quit()
		select {
		case err = <-errChan:
		case <-time.After(10 * time.Second):
			logger.Warn("dashboard did not exit in time")
		}
	}

	cancel()
	<-clientDone
	return err
}

// defaultServerURL derives the local push channel URL from a listen address.
func defaultServerURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "ws://" + host + "/ws"
}

// apiBase turns a websocket URL into the HTTP base of the same server.
func apiBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

// httpGraphLoader fetches graphs from the server's graph endpoint.
func httpGraphLoader(client *http.Client, base string) tui.GraphLoader {
	return func(ctx context.Context, taskID string) (*graph.Graph, error) {
		endpoint := base + "/api/tasks/" + url.PathEscape(taskID) + "/graph"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching graph: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("reading graph: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching graph: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		g, err := graph.ParsePortable(body)
		if err != nil {
			return nil, err
		}
		g.SetID(taskID)
		return g, nil
	}
}
