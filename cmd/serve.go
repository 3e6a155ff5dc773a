package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pyscout/core/cli"
	"github.com/pyscout/core/collection"
	"github.com/pyscout/core/finder"
	"github.com/pyscout/core/logging"
	"github.com/pyscout/core/protocol"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsEvent is one message on the /events stream.
type wsEvent struct {
	Type        string                  `json:"type"`
	State       string                  `json:"state,omitempty"`
	Old         *collection.Environment `json:"old,omitempty"`
	Environment *collection.Environment `json:"environment,omitempty"`
}

// NewServeCmd creates the `serve` command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve discovery results over HTTP",
		Long: `Runs a long-lived discovery service: GET /environments returns the
current snapshot as JSON, and /events is a websocket stream of Created and
Changed events plus refresh progress, so editors and tools can react to
environments appearing and disappearing.

Examples:
  # Serve on the default port
  pyscout serve

  # Custom listen address
  pyscout serve --addr 127.0.0.1:9742
`,
		RunE: runServeE,
	}

	cmd.Flags().String("addr", "127.0.0.1:8742", "Listen address")
	cmd.Flags().Duration("rescan", 5*time.Minute, "Interval between background rescans (0 disables)")

	return cmd
}

func runServeE(cmd *cobra.Command, args []string) error {
	opts := cli.GetOptions(cmd)
	handler := cli.NewErrorHandler(opts.Verbose)
	logger := logging.NewLogger("serve")

	f, err := newDiscoveryFinder(cmd)
	if err != nil {
		return handler.Handle(err)
	}
	defer f.Dispose()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if rescan, _ := cmd.Flags().GetDuration("rescan"); rescan > 0 {
		go rescanLoop(ctx, f, rescan, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/environments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(f.GetEnvs()); err != nil {
			logger.WithError(err).Warn("Failed to write environments snapshot")
		}
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		serveEvents(f, logger, w, r)
	})

	addr, _ := cmd.Flags().GetString("addr")
	logger.Infof("Serving discovery results on http://%s", addr)
	fmt.Printf("pyscout serving on http://%s (endpoints: /environments, /events)\n", addr)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return handler.Handle(err)
	}
	return nil
}

func rescanLoop(ctx context.Context, f *finder.Finder, interval time.Duration, logger *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session, err := f.Refresh(ctx, protocol.RefreshParams{})
			if err != nil {
				logger.Errorf("Background rescan failed: %v", err)
				continue
			}
			if err := session.Wait(ctx); err != nil {
				logger.Errorf("Background rescan failed: %v", err)
			}
		}
	}
}

// serveEvents streams change and progress events over one websocket
// connection until the client goes away.
func serveEvents(f *finder.Finder, logger *logrus.Entry, w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsEvent, 64)
	push := func(ev wsEvent) {
		select {
		case writeCh <- ev:
		default:
			// A stalled client misses events rather than stalling discovery.
		}
	}

	removeChange := f.OnChange(func(ev collection.ChangeEvent) {
		out := wsEvent{Type: string(ev.Kind)}
		out.Old = ev.Old
		out.Environment = ev.New
		push(out)
	})
	defer removeChange()

	removeProgress := f.OnProgress(func(ev finder.ProgressEvent) {
		push(wsEvent{Type: "progress", State: string(ev.State)})
	})
	defer removeProgress()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debugf("Event stream client gone: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
