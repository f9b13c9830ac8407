package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rejectfewer/internal/server"
)

func TestNewMCPServer(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		want     []string
	}{
		{
			name:     "read only",
			readOnly: true,
			want:     []string{"triage_history", "triage_list_candidates", "triage_list_trashed", "triage_status"},
		},
		{
			name: "yolo",
			want: []string{"triage_history", "triage_list_candidates", "triage_list_trashed", "triage_restore", "triage_run", "triage_status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := docsServerContext(context.Background())
			require.NoError(t, err)
			t.Cleanup(func() { _ = sc.Shutdown() })

			srv, err := newMCPServer(sc, tt.readOnly)
			require.NoError(t, err)

			var names []string
			for name := range srv.ListTools() {
				names = append(names, name)
			}
			sort.Strings(names)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestStatusServerConfig_RunNeedsYolo(t *testing.T) {
	sc, err := docsServerContext(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	for _, yolo := range []bool{false, true} {
		opts := serveOptions{httpAddr: "127.0.0.1:0", yolo: yolo}
		srv, err := server.NewHTTPServer(statusServerConfig(opts, sc, nil, nil))
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run", nil))
		if yolo {
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "route exists with --yolo")
		} else {
			assert.Equal(t, http.StatusNotFound, rec.Code, "no route without --yolo")
		}
	}
}

func TestRunServe_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    serveOptions
		wantErr string
	}{
		{
			name:    "unknown transport",
			opts:    serveOptions{transport: "sse"},
			wantErr: "unsupported transport type: sse",
		},
		{
			name:    "http without address",
			opts:    serveOptions{transport: transportStreamableHTTP},
			wantErr: "--http-addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runServe(&cobra.Command{}, tt.opts)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
