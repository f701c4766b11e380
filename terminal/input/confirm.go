package input

import (
    "fmt"
    "strings"
)

// ConfirmConfig configures confirmation behavior
type ConfirmConfig struct {
    Message     string
    Default     bool
    YesLabel    string
    NoLabel     string
    HelpText    string
    RequireExplicit bool
}

// Confirm displays a confirmation prompt
func (ir *InputReader) Confirm(config ConfirmConfig) (bool, error) {
    // Set defaults
    if config.YesLabel == "" {
        config.YesLabel = "yes"
    }
    if config.NoLabel == "" {
        config.NoLabel = "no"
    }
    
    for {
        // Build prompt
        var prompt strings.Builder
        prompt.WriteString(fmt.Sprintf("%s%s%s", ColorYellow+ColorBold, config.Message, ColorReset))
        
        if !config.RequireExplicit {
            if config.Default {
                prompt.WriteString(fmt.Sprintf(" %s[Y/n]%s", ColorDim, ColorReset))
            } else {
                prompt.WriteString(fmt.Sprintf(" %s[y/N]%s", ColorDim, ColorReset))
            }
        } else {
            prompt.WriteString(fmt.Sprintf(" %s[%s/%s]%s", ColorDim, config.YesLabel, config.NoLabel, ColorReset))
        }
        
        if config.HelpText != "" {
            prompt.WriteString(fmt.Sprintf("\n%s%s%s", ColorDim, config.HelpText, ColorReset))
        }
        
        prompt.WriteString(": ")
        
        ir.printf("%s", prompt.String())
        
        // Read input
        input, err := ir.readLine()
        if err != nil {
            return false, fmt.Errorf("failed to read input: %w", err)
        }
        
        input = strings.ToLower(strings.TrimSpace(input))
        
        // Handle empty input (use default)
        if input == "" && !config.RequireExplicit {
            return config.Default, nil
        }
        
        // Check for explicit answers
        if config.RequireExplicit {
            if input == strings.ToLower(config.YesLabel) {
                return true, nil
            }
            if input == strings.ToLower(config.NoLabel) {
                return false, nil
            }
            ir.printf("%s❌ Please enter '%s' or '%s'%s\n", ColorRed, config.YesLabel, config.NoLabel, ColorReset)
            continue
        }
        
        // Standard yes/no parsing
        switch input {
        case "y", "yes", "true", "1":
            return true, nil
        case "n", "no", "false", "0":
            return false, nil
        default:
            ir.printf("%s❌ Please enter 'y' or 'n'%s\n", ColorRed, ColorReset)
        }
    }
}

// SimpleConfirm is a convenience function for basic confirmation
func SimpleConfirm(message string) (bool, error) {
    ir := NewInputReader()
    return ir.Confirm(ConfirmConfig{
        Message: message,
        Default: false,
    })
}

// ConfirmWithDefault prompts with a default value
func ConfirmWithDefault(message string, defaultValue bool) (bool, error) {
    ir := NewInputReader()
    return ir.Confirm(ConfirmConfig{
        Message: message,
        Default: defaultValue,
    })
}

// ConfirmCancelJob prompts before canceling a running job, requiring
// CONFIRM to be typed explicitly (or cancel to decline).
func ConfirmCancelJob(jobID string) (bool, error) {
    ir := NewInputReader()
    return ir.Confirm(ConfirmConfig{
        Message:         fmt.Sprintf("%s⚠️  Cancel job %s%s", ColorRed+ColorBold, jobID, ColorReset),
        RequireExplicit: true,
        YesLabel:        "CONFIRM",
        NoLabel:         "cancel",
        HelpText:        "The supervisor will SIGKILL the running child on its next poll.",
    })
}