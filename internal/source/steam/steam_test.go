package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchwatch/internal/branch"
	"branchwatch/internal/source"
	logx "branchwatch/pkg/logx"
)

const sampleInfo = `{
  "status": "success",
  "data": {
    "881100": {
      "depots": {
        "branches": {
          "public":    {"buildid": "14292265", "timeupdated": "1717000000"},
          "noitabeta": {"buildid": "14300000", "timeupdated": 1717000500},
          "dev":       {"buildid": "99", "timeupdated": "1", "pwdrequired": "1", "description": "internal"}
        }
      }
    }
  }
}`

func TestFetchBranchesKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/info/881100", r.URL.Path)
		_, _ = io.WriteString(w, sampleInfo)
	}))
	defer srv.Close()

	c := New(Config{InfoURL: srv.URL + "/v1/info/%d"}, logx.Nop())
	got, err := c.FetchBranches(context.Background(), 881100)
	require.NoError(t, err)
	assert.Equal(t, []branch.Record{
		{Name: "public", BuildID: "14292265", LastUpdated: 1717000000},
		{Name: "noitabeta", BuildID: "14300000", LastUpdated: 1717000500},
		{Name: "dev", BuildID: "99", LastUpdated: 1, PasswordProtected: true},
	}, got)
}

func TestFetchBranchesUnavailable(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"http error": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"bad json":   func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "{") },
		"wrong app":  func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, `{"status":"success","data":{}}`) },
		"failed":     func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, `{"status":"failed"}`) },
	}
	for name, h := range tests {
		h := h
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := New(Config{InfoURL: srv.URL + "/%d"}, logx.Nop())
			_, err := c.FetchBranches(context.Background(), 881100)
			assert.ErrorIs(t, err, source.ErrUnavailable)
		})
	}
}

func TestMaterializeArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := func(_ context.Context, name string, args []string, out io.Writer) error {
		gotName, gotArgs = name, args
		_, _ = fmt.Fprintln(out, "Success! App '881100' fully installed.")
		return nil
	}
	c := New(Config{SteamCMDPath: "/opt/steamcmd"}, logx.Nop(), WithRunner(runner))

	err := c.Materialize(context.Background(), 881100, "noitabeta", "/tmp/x", source.MaterializeOptions{Beta: "noitabeta"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/steamcmd", gotName)
	assert.Equal(t, []string{"+force_install_dir", "/tmp/x", "+login", "anonymous", "+app_update", "881100", "-beta", "noitabeta", "+quit"}, gotArgs)

	require.NoError(t, c.Materialize(context.Background(), 881100, "public", "/tmp/y", source.MaterializeOptions{Validate: true}))
	assert.Equal(t, []string{"+force_install_dir", "/tmp/y", "+login", "anonymous", "+app_update", "881100", "validate", "+quit"}, gotArgs)
}

func TestMaterializeFailure(t *testing.T) {
	runner := func(context.Context, string, []string, io.Writer) error { return errors.New("exit code 8") }
	c := New(Config{}, logx.Nop(), WithRunner(runner))
	err := c.Materialize(context.Background(), 1, "public", t.TempDir(), source.MaterializeOptions{})
	assert.ErrorIs(t, err, source.ErrUnavailable)
}
