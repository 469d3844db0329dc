package flags

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/opentripplanner/custom-release/internal/utils"
)

// ErrFlagNotDefined is returned when a command has no flag with the requested name.
var ErrFlagNotDefined = errors.New("flag not defined")

// BoolFlag reads a boolean flag and reports whether it was set on the command line.
func BoolFlag(command *cobra.Command, name string) (bool, bool, error) {
	return readFlag(command, name, (*pflag.FlagSet).GetBool)
}

// StringFlag reads a string flag and reports whether it was set on the command line.
func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	return readFlag(command, name, (*pflag.FlagSet).GetString)
}

func readFlag[T any](command *cobra.Command, name string, getter func(*pflag.FlagSet, string) (T, error)) (T, bool, error) {
	var zero T
	if command == nil {
		return zero, false, ErrFlagNotDefined
	}
	for _, flagSet := range []*pflag.FlagSet{command.Flags(), command.InheritedFlags(), command.Root().PersistentFlags()} {
		flag := flagSet.Lookup(name)
		if flag == nil {
			continue
		}
		value, getError := getter(flagSet, name)
		if getError != nil {
			return zero, false, getError
		}
		return value, flag.Changed, nil
	}
	return zero, false, ErrFlagNotDefined
}

// CollectExecutionFlags reads the execution flags straight from the command line.
func CollectExecutionFlags(command *cobra.Command) utils.ExecutionFlags {
	var executionFlags utils.ExecutionFlags
	executionFlags.DryRun, executionFlags.DryRunSet, _ = BoolFlag(command, DryRunFlagName)
	executionFlags.Debug, executionFlags.DebugSet, _ = BoolFlag(command, DebugFlagName)

	resumeAnswer, resumeChanged, _ := StringFlag(command, ResumeFlagName)
	executionFlags.Resume = strings.ToLower(strings.TrimSpace(resumeAnswer))
	executionFlags.ResumeSet = resumeChanged && executionFlags.Resume != ""
	return executionFlags
}

// ResolveExecutionFlags prefers the flags stored in the command context during initialization and falls
// back to the command line. The boolean reports whether any execution flag was provided.
func ResolveExecutionFlags(command *cobra.Command) (utils.ExecutionFlags, bool) {
	if command != nil {
		if executionFlags, available := utils.NewCommandContextAccessor().ExecutionFlags(command.Context()); available {
			return executionFlags, true
		}
	}
	executionFlags := CollectExecutionFlags(command)
	return executionFlags, executionFlags.DryRunSet || executionFlags.DebugSet || executionFlags.ResumeSet
}
