package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milalabs/licsync/internal/license"
)

func runLicense(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := License()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--quiet"))
	err := cmd.Execute()
	return out.String(), err
}

func TestLicenseCommands(t *testing.T) {
	t.Setenv("LICSYNC_HOME", t.TempDir())

	out, err := runLicense(t, "add", "ABC-123", "--product", "p1", "--product-name", "Pro", "--email", "a@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "License ABC-123 recorded")

	out, err = runLicense(t, "add", "ABC-123")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = runLicense(t, "activate", "ABC-123")
	require.NoError(t, err)
	assert.Contains(t, out, "License ABC-123 activated")

	out, err = runLicense(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ABC-123")
	assert.Contains(t, out, "Pro")
	assert.Contains(t, out, "a@example.com")

	_, err = runLicense(t, "clear")
	require.ErrorIs(t, err, errNotConfirmed)

	_, err = runLicense(t, "clear", "--yes")
	require.NoError(t, err)

	_, err = runLicense(t, "lookup", "ABC-123")
	require.ErrorIs(t, err, license.ErrNotFound)
}

func TestRenderLicenses(t *testing.T) {
	issued := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	out := renderLicenses(license.Collection{
		{LicenseKey: "K1", ProductID: "p1", IssuedAt: issued},
		{LicenseKey: "K2", ProductName: "Pro", BuyerEmail: "b@example.com", Activated: true},
	})

	assert.Contains(t, out, "LICENSE KEY")
	assert.Contains(t, out, "K1")
	assert.Contains(t, out, "p1", "product id is shown when the name is empty")
	assert.Contains(t, out, "2025-01-02 03:04:05")
	assert.Contains(t, out, "Pro")
	assert.Contains(t, out, "TOTAL")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := Version()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.NotEmpty(t, out.String())
}
