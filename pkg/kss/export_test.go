package kss

// Aliases giving the external test package access to unexported helpers.
var (
	CalculateConfigHash  = calculateConfigHash
	GenerateOutputPath   = generateOutputPath
	SummaryDescription   = summaryDescription
	PluginApplies        = pluginApplies
	BuildFrontMatterData = buildFrontMatterData
	GenerateFrontMatter  = generateFrontMatter
)
