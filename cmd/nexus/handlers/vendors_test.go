package handlers

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/nexus/internal/config"
)

func TestVendors_ListsInRunOrder(t *testing.T) {
	saveAndRestoreFactories(t)
	out := captureStdout(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "nexus.yaml", `vendors:
  - id: globex
    driver: simulated
    challenge:
      timeout: 10m
  - id: acme
    display_name: Acme Portal
    driver: simulated
    enabled: false
`)

	require.NoError(t, Vendors(context.Background(), cfgPath))

	printed := out.String()
	assert.Contains(t, printed, "2 vendor(s) configured")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("globex")), bytes.Index(out.Bytes(), []byte("acme")))
	assert.Contains(t, printed, "Acme Portal")
	assert.Contains(t, printed, "10m0s")
	assert.Contains(t, printed, "disabled")
	assert.Contains(t, printed, "ready")
}

func TestVendors_MissingDriver(t *testing.T) {
	saveAndRestoreFactories(t)
	out := captureStdout(t)
	cfgPath := writeFile(t, t.TempDir(), "nexus.yaml", `vendors:
  - id: acme
    driver: portal-v2
`)

	err := Vendors(context.Background(), cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme")
	assert.Contains(t, out.String(), "no driver")
}

func TestRenderVendors_Defaults(t *testing.T) {
	var buf bytes.Buffer
	vendors := []config.VendorConfig{{ID: "acme", Driver: "simulated"}}

	require.NoError(t, renderVendors(&buf, vendors, func(string) bool { return true }))
	assert.Contains(t, buf.String(), "email")
	assert.Contains(t, buf.String(), "default")
}
