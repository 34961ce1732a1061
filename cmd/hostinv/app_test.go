package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/x1thexxx-lgtm/hostinv/pkg/config"
	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
	"github.com/x1thexxx-lgtm/hostinv/pkg/logging"
	"github.com/x1thexxx-lgtm/hostinv/pkg/sheet"
)

type fleet map[string]inventory.Result

func (f fleet) CollectHost(_ context.Context, host string) inventory.Result {
	if res, ok := f[host]; ok {
		return res
	}
	return inventory.Failed(host, inventory.KindConnection, errors.New("no route to host"))
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Servers:   []string{"gpu01", "gpu02"},
		IPServers: []string{"10.0.0.9"},
		Workers:   2,
		Output:    filepath.Join(dir, "server_inventory.xlsx"),
		Store:     config.StoreConfig{Path: filepath.Join(dir, "hostinv.db")},
		Metrics:   config.MetricsConfig{Textfile: filepath.Join(dir, "hostinv.prom")},
	}
}

func testFleet() fleet {
	return fleet{
		"gpu01": inventory.Success("gpu01", inventory.HostInventory{
			Hostname: "gpu01.local",
			GPU:      []inventory.GPUFact{{Type: "NVIDIA A100", VRAM: "40960 MiB"}},
			CPU:      inventory.CPUFact{Count: "64", Type: "AMD EPYC"},
			RAM:      "512G",
		}),
		"gpu02": inventory.Success("gpu02", inventory.HostInventory{Hostname: "gpu02.local", RAM: "256G"}),
	}
}

func TestAppRunWritesEverySink(t *testing.T) {
	cfg := testConfig(t)
	base, _ := logrustest.NewNullLogger()
	var out bytes.Buffer

	a, err := newApp(cfg, logging.FromLogrus(base), testFleet(), &out)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Inventory spreadsheet created: "+cfg.Output, lines[0])
	assert.Regexp(t, `^Total execution time: \d+\.\d{2} seconds$`, lines[1])

	f, err := excelize.OpenFile(cfg.Output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per collected host")
	assert.Equal(t, "gpu01", rows[1][0])
	assert.Equal(t, "gpu02", rows[2][0])

	snap, err := a.store.LatestInventory(context.Background(), "gpu01")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "gpu01.local", snap.Inventory.Hostname)

	runs, err := a.store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Hosts)
	assert.Equal(t, 1, runs[0].Failures)

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `hostinv_hosts_total{outcome="failure"} 1`)
}

func TestAppRunOutputError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output = filepath.Join(t.TempDir(), "missing", "inventory.xlsx")
	cfg.Store.Path = ""
	cfg.Metrics.Textfile = ""
	base, _ := logrustest.NewNullLogger()
	var out bytes.Buffer

	a, err := newApp(cfg, logging.FromLogrus(base), testFleet(), &out)
	require.NoError(t, err)
	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write spreadsheet")
	assert.Empty(t, out.String())
}

func TestAppRunSinkErrorsAreNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "missing", "hostinv.prom")
	base, hook := logrustest.NewNullLogger()
	var out bytes.Buffer

	a, err := newApp(cfg, logging.FromLogrus(base), testFleet(), &out)
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	var logged bool
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "metrics:") {
			logged = true
		}
	}
	assert.True(t, logged, "metrics write failure is logged")
	assert.Contains(t, out.String(), "Total execution time")
}

func TestAppRunIsRepeatable(t *testing.T) {
	cfg := testConfig(t)
	base, _ := logrustest.NewNullLogger()
	a, err := newApp(cfg, logging.FromLogrus(base), testFleet(), &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))
	require.NoError(t, a.Run(context.Background()))

	runs, err := a.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestNewCollectorRejectsMissingKnownHosts(t *testing.T) {
	cfg := testConfig(t)
	cfg.SSH = config.SSHConfig{
		User:          "ops",
		Password:      "pw",
		HostKeyPolicy: config.HostKeyKnownHosts,
		KnownHosts:    filepath.Join(t.TempDir(), "absent"),
	}
	_, err := newCollector(cfg, nil)
	assert.Error(t, err)

	cfg.SSH.HostKeyPolicy = config.HostKeyTrustOnFirstUse
	c, err := newCollector(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestRunRejectsMissingConfig(t *testing.T) {
	err := run([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestNewAppStoreOpenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = filepath.Join(t.TempDir(), "missing", "hostinv.db")
	_, err := newApp(cfg, nil, testFleet(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestListRunsPrintsRunsAndFailures(t *testing.T) {
	cfg := testConfig(t)
	base, _ := logrustest.NewNullLogger()
	var out bytes.Buffer
	a, err := newApp(cfg, logging.FromLogrus(base), testFleet(), &out)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))
	out.Reset()

	require.NoError(t, a.ListRuns(context.Background(), 0))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^Run [0-9a-f-]{36} at \S+ \(\d+\.\d{2} seconds\): 2 hosts, 1 failures$`, lines[0])
	assert.Equal(t, "  10.0.0.9 [connection] no route to host", lines[1])
}

func TestListRunsEmptyStore(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	a, err := newApp(cfg, nil, nil, &out)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.ListRuns(context.Background(), 0))
	assert.Equal(t, "No runs stored\n", out.String())
}

func TestLastPrintsLatestInventory(t *testing.T) {
	cfg := testConfig(t)
	base, _ := logrustest.NewNullLogger()
	var out bytes.Buffer
	a, err := newApp(cfg, logging.FromLogrus(base), testFleet(), &out)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))
	out.Reset()

	require.NoError(t, a.Last(context.Background(), "gpu01"))
	text := out.String()
	assert.True(t, strings.HasPrefix(text, "Host gpu01 collected "), text)
	assert.Contains(t, text, `"hostname": "gpu01.local"`)
	assert.Contains(t, text, `"type": "NVIDIA A100"`)

	err = a.Last(context.Background(), "10.0.0.9")
	assert.EqualError(t, err, "no inventory stored for 10.0.0.9")
}

func TestQueriesNeedStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	a, err := newApp(cfg, nil, nil, &bytes.Buffer{})
	require.NoError(t, err)

	assert.ErrorIs(t, a.ListRuns(context.Background(), 0), errNoStore)
	assert.ErrorIs(t, a.Last(context.Background(), "gpu01"), errNoStore)
	assert.ErrorIs(t, query(cfg, nil, true, ""), errNoStore)
}

func TestRunQueryFlagsReadTheStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hostinv.db")
	configPath := filepath.Join(dir, "servers.yaml")
	yaml := "ssh:\n  user: ops\n  password: pw\nstore:\n  path: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	cfg := testConfig(t)
	cfg.Store.Path = dbPath
	base, _ := logrustest.NewNullLogger()
	a, err := newApp(cfg, logging.FromLogrus(base), testFleet(), &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))
	require.NoError(t, a.Close())

	require.NoError(t, run([]string{"--config", configPath, "--list-runs"}))
	require.NoError(t, run([]string{"--config", configPath, "--last", "gpu02"}))
	err = run([]string{"--config", configPath, "--last", "unknown"})
	assert.EqualError(t, err, "no inventory stored for unknown")
}
