// Package flags binds and reads the execution flags shared by every custom-release invocation.
package flags

import "github.com/spf13/cobra"

const (
	// DryRunFlagName is the flag that turns state-changing git and maven commands into log lines.
	DryRunFlagName = "dry-run"
	// DebugFlagName is the flag that enables debug output.
	DebugFlagName = "debug"
	// ResumeFlagName is the flag that answers the resume prompt up front.
	ResumeFlagName = "resume"

	dryRunFlagUsageConstant = "Log state-changing git and maven commands instead of running them"
	debugFlagUsageConstant  = "Enable debug output"
	resumeFlagUsageConstant = "Answer the resume prompt without asking: y (resume), x (exit) or d (delete state and exit)"
)

type toggleFlag struct {
	name  string
	usage string
}

var toggleFlags = []toggleFlag{
	{name: DryRunFlagName, usage: dryRunFlagUsageConstant},
	{name: DebugFlagName, usage: debugFlagUsageConstant},
}

// BindExecutionFlags registers --dry-run, --debug and --resume as persistent flags. Flags already
// present on the command are left untouched.
func BindExecutionFlags(command *cobra.Command) {
	if command == nil {
		return
	}
	flagSet := command.PersistentFlags()
	for _, toggle := range toggleFlags {
		if flagSet.Lookup(toggle.name) == nil {
			flagSet.Bool(toggle.name, false, toggle.usage)
		}
	}
	if flagSet.Lookup(ResumeFlagName) == nil {
		flagSet.String(ResumeFlagName, "", resumeFlagUsageConstant)
	}
}
