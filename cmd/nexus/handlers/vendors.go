package handlers

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/imamik/nexus/internal/config"
)

// Colors matching internal/ui/tui/styles.go palette.
var (
	listColorGreen = lipgloss.Color("#22c55e")
	listColorRed   = lipgloss.Color("#ef4444")
	listColorDim   = lipgloss.Color("#6b7280")
	listColorWhite = lipgloss.Color("#f9fafb")
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(listColorWhite)

	listDimStyle = lipgloss.NewStyle().
			Foreground(listColorDim)

	listGreenStyle = lipgloss.NewStyle().
			Foreground(listColorGreen)

	listRedStyle = lipgloss.NewStyle().
			Foreground(listColorRed)
)

// Vendors lists the configured vendors in run order and checks that each
// enabled vendor has a registered driver.
func Vendors(_ context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	registry, err := newRegistry()
	if err != nil {
		return fmt.Errorf("failed to register drivers: %w", err)
	}

	var missing []string
	for _, v := range cfg.Vendors {
		if v.IsEnabled() && !registry.Has(v.Driver) {
			missing = append(missing, v.ID)
		}
	}

	if err := renderVendors(stdout, cfg.Vendors, registry.Has); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("no driver available for enabled vendors: %s", strings.Join(missing, ", "))
	}
	return nil
}

func renderVendors(w io.Writer, vendors []config.VendorConfig, hasDriver func(string) bool) error {
	fmt.Fprintln(w, listTitleStyle.Render(fmt.Sprintf("%d vendor(s) configured", len(vendors))))
	fmt.Fprintln(w)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(listDimStyle).
		Headers("#", "ID", "NAME", "DRIVER", "IDENTITY", "CHALLENGE TIMEOUT", "STATE")
	for i, v := range vendors {
		t.Row(strconv.Itoa(i+1), v.ID, v.Name(), v.Driver, identityOf(v), challengeOf(v), vendorState(v, hasDriver))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func identityOf(v config.VendorConfig) string {
	if v.Identity == "" {
		return "email"
	}
	return v.Identity
}

func challengeOf(v config.VendorConfig) string {
	if v.Challenge == nil || v.Challenge.Timeout == 0 {
		return "default"
	}
	return v.Challenge.Timeout.String()
}

func vendorState(v config.VendorConfig, hasDriver func(string) bool) string {
	switch {
	case !v.IsEnabled():
		return listDimStyle.Render("disabled")
	case !hasDriver(v.Driver):
		return listRedStyle.Render("no driver")
	default:
		return listGreenStyle.Render("ready")
	}
}
