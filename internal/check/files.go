package check

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/fatih/color"

	"github.com/rostilos/CodeCrow-sub008/internal/configfiles"
)

// checkConfigFile makes sure the configuration file exists, offering to
// create it from the embedded template in interactive mode
func (c *Checker) checkConfigFile(result *CheckResult) bool {
	if fileExists(c.configPath) {
		printFileStatus(c.configPath, true, false)
		return true
	}
	printFileStatus(c.configPath, false, false)

	if !c.interactive {
		result.fail(fmt.Sprintf("Configuration not found: %s", c.configPath))
		result.Suggestions = append(result.Suggestions,
			"Run 'codecrow check --init' to create it from the bundled template")
		return false
	}

	confirm, err := c.confirm(fmt.Sprintf("Create %s from template?", c.configPath))
	if err != nil {
		result.fail(fmt.Sprintf("Failed to get user confirmation: %v", err))
		return false
	}
	if !confirm {
		result.fail(fmt.Sprintf("Configuration not found: %s", c.configPath))
		return false
	}

	if _, err := configfiles.WriteConfigExample(c.configPath); err != nil {
		result.fail(err.Error())
		return false
	}
	printFileStatus(c.configPath, true, true)
	result.Suggestions = append(result.Suggestions,
		fmt.Sprintf("Review %s and set provider tokens, the AI endpoint and projects", c.configPath))
	return true
}

// confirmCreate asks the user on the terminal
func confirmCreate(question string) (bool, error) {
	var confirm bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()
	if err != nil {
		return false, err
	}
	return confirm, nil
}

// printFileStatus prints the status of a file check
func printFileStatus(path string, exists bool, created bool) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	switch {
	case created:
		green.Printf("  ✓ %s (created)\n", path)
	case exists:
		green.Printf("  ✓ %s\n", path)
	default:
		yellow.Printf("  ⚠ %s does not exist\n", path)
	}
}
