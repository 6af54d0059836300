package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aahsnr/fedora-setup/internal/catalog"
	"github.com/aahsnr/fedora-setup/internal/config"
	"github.com/aahsnr/fedora-setup/internal/sysexec"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"full yes", "YES\n", true},
		{"no", "n\n", false},
		{"empty line", "\n", false},
		{"eof", "", false},
		{"yes without newline", "y", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirm(strings.NewReader(tt.input), &out, "plan\n")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Continue? [y/N]")
		})
	}
}

func TestSelectedCategories(t *testing.T) {
	defer func() {
		for _, c := range catalog.Categories() {
			*categoryFlags[c] = false
		}
	}()
	*categoryFlags[catalog.Cleanup] = true
	*categoryFlags[catalog.Repos] = true

	assert.Equal(t, []catalog.Category{catalog.Repos, catalog.Cleanup}, selectedCategories())
}

func TestCategoryFlagsRegistered(t *testing.T) {
	for _, c := range catalog.Categories() {
		assert.NotNil(t, rootCmd.Flags().Lookup(string(c)), "missing --%s", c)
	}
	f := rootCmd.Flags().Lookup("resume")
	require.NotNil(t, f)
	assert.True(t, f.Hidden)
}

func TestPlanText(t *testing.T) {
	cfg := config.Default()
	cfg.User = sysexec.Identity{Name: "alice", Home: "/home/alice"}

	auto := planText(&cfg, "automated", nil)
	assert.Contains(t, auto, "reboots after the first phase")
	assert.Contains(t, auto, "alice")

	manual := planText(&cfg, "manual", []catalog.Category{catalog.Packages, catalog.Desktop})
	assert.Contains(t, manual, "packages, desktop")
}

func TestConfigExample(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "example"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "state_dir:")
}
