package check

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// PrintHeader prints the check title
func PrintHeader(w io.Writer) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	fmt.Fprintln(w, titleStyle.Render("🔍 CodeCrow Environment Check"))
}

// PrintCheckResult prints the check result in a formatted way
func PrintCheckResult(w io.Writer, result *CheckResult) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		red.Fprintln(w, "[ERROR] Environment check failed")
		for _, err := range result.Errors {
			red.Fprintf(w, "  ✗ %s\n", err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintln(w, "[WARNING] Configuration warnings:")
		for _, warn := range result.Warnings {
			yellow.Fprintf(w, "  ⚠ %s\n", warn)
		}
	}

	if len(result.Suggestions) > 0 {
		cyan.Fprintln(w, "\nTo fix these issues:")
		for _, suggestion := range result.Suggestions {
			fmt.Fprintf(w, "  → %s\n", suggestion)
		}
	}

	fmt.Fprintln(w)
	printSummary(w, result)
}

// printSummary prints the final status line
func printSummary(w io.Writer, result *CheckResult) {
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	fmt.Fprintln(w, sep.Render(strings.Repeat("─", 50)))

	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	switch {
	case !result.Success:
		red.Fprintf(w, "✗ Check failed (%d error(s))\n", len(result.Errors))
	case len(result.Warnings) > 0:
		yellow.Fprintf(w, "⚠ Check completed (%d warning(s))\n", len(result.Warnings))
	default:
		green.Fprintln(w, "✓ Check completed - All checks passed")
	}
}
