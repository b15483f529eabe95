package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evantahler/botholomew-sub001/internal/action"
)

// flagSchema is the slice of a JSON Schema needed to build CLI flags.
type flagSchema struct {
	Properties map[string]struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"properties"`
	Required []string `json:"required"`
}

// addActionCommands adds one subcommand per registered action, flags
// generated from the action's input schema. Results print as the same JSON
// envelope every other transport produces: response to stdout, error to
// stderr, exit code 0/1.
func addActionCommands(root *cobra.Command, a *app) {
	for _, act := range a.registry.List() {
		root.AddCommand(newActionCommand(a, act))
	}
}

func newActionCommand(a *app, act action.Action) *cobra.Command {
	var fs flagSchema
	if raw := act.InputSchema(); len(raw) > 0 {
		_ = json.Unmarshal(raw, &fs)
	}

	required := make(map[string]bool, len(fs.Required))
	for _, name := range fs.Required {
		required[name] = true
	}

	var sessionID string

	cmd := &cobra.Command{
		Use:   act.Name(),
		Short: act.Description(),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := action.Input{}
			for name, prop := range fs.Properties {
				flag := cmd.Flags().Lookup(name)
				if flag == nil || !flag.Changed {
					if required[name] {
						return fmt.Errorf("--%s is required", name)
					}
					continue
				}
				switch prop.Type {
				case "integer":
					v, err := cmd.Flags().GetInt(name)
					if err != nil {
						return err
					}
					params[name] = v
				case "boolean":
					v, err := cmd.Flags().GetBool(name)
					if err != nil {
						return err
					}
					params[name] = v
				case "object":
					raw, err := cmd.Flags().GetString(name)
					if err != nil {
						return err
					}
					var obj map[string]any
					if err := json.Unmarshal([]byte(raw), &obj); err != nil {
						return fmt.Errorf("--%s must be a JSON object: %w", name, err)
					}
					params[name] = obj
				default:
					v, err := cmd.Flags().GetString(name)
					if err != nil {
						return err
					}
					params[name] = v
				}
			}

			conn := &action.Connection{Kind: "cli", SessionID: sessionID}
			env := a.dispatcher.Act(cmd.Context(), conn, act.Name(), params)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if env.IsError() {
				errEnc := json.NewEncoder(os.Stderr)
				errEnc.SetIndent("", "  ")
				_ = errEnc.Encode(env)
				return errExit
			}
			return enc.Encode(env)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id for authenticated actions")

	for name, prop := range fs.Properties {
		usage := prop.Description
		if required[name] {
			usage += " (required)"
		}
		switch prop.Type {
		case "integer":
			cmd.Flags().Int(name, 0, usage)
		case "boolean":
			cmd.Flags().Bool(name, false, usage)
		default:
			cmd.Flags().String(name, "", usage)
		}
	}

	return cmd
}

// errExit is a sentinel: the envelope was already printed, exit nonzero
// without repeating the message.
var errExit = fmt.Errorf("action failed")
