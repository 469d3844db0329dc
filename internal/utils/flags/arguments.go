package flags

import "strings"

var legacyFlagSpellings = map[string]string{
	"--dryRun":       "--" + DryRunFlagName,
	"--serVerId":     "--ser-ver-id",
	"--skipPRs":      "--skip-prs",
	"--printSummary": "--summary",
}

// NormalizeLegacyArguments rewrites the camel-case flag spellings accepted by earlier release scripts.
func NormalizeLegacyArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		flagName, flagValue, hasValue := strings.Cut(argument, "=")
		replacement, isLegacy := legacyFlagSpellings[flagName]
		if !isLegacy {
			normalized = append(normalized, argument)
			continue
		}
		if hasValue {
			replacement = replacement + "=" + flagValue
		}
		normalized = append(normalized, replacement)
	}
	return normalized
}
