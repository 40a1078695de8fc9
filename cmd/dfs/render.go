package main

import (
	"fmt"
	"strings"

	"dfs/pkg/types"
	"dfs/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Style definitions
var (
	primaryColor   = lipgloss.Color("#FF79C6") // Pink
	secondaryColor = lipgloss.Color("#8BE9FD") // Cyan
	accentColor    = lipgloss.Color("#50FA7B") // Green
	warningColor   = lipgloss.Color("#FFB86C") // Orange
	mutedColor     = lipgloss.Color("#6272A4") // Comment
	bgLightColor   = lipgloss.Color("#44475A") // Current Line
	fgColor        = lipgloss.Color("#F8F8F2") // Foreground

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginBottom(1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(22)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	accentValueStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true)

	warningValueStyle = lipgloss.NewStyle().
				Foreground(warningColor).
				Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			Background(bgLightColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(fgColor)
)

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func renderStored(record *types.FileRecord) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("📦 File Stored"))
	b.WriteString("\n")
	b.WriteString(row("Hash", record.FileHash[:16]+"…"))
	b.WriteString("\n")
	b.WriteString(row("Name", record.Filename))
	b.WriteString("\n")
	b.WriteString(row("Size", utils.FormatDataSize(int64(record.Size))))
	b.WriteString("\n")
	b.WriteString(row("Chunks", fmt.Sprintf("%d × %d replicas", len(record.Chunks), record.Replication)))
	b.WriteString("\n")
	b.WriteString(row("Encrypted", fmt.Sprintf("%v (%s)", record.Encryption.IsEncrypted, record.Encryption.Algorithm)))
	return panelStyle.Render(b.String())
}

func renderStatistics(stats types.Statistics) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("🌐 Network Statistics"))
	b.WriteString("\n")
	b.WriteString(row("Files", fmt.Sprintf("%d", stats.TotalFiles)))
	b.WriteString("\n")
	b.WriteString(row("Stored", utils.FormatDataSize(int64(stats.TotalStorageBytes))))
	b.WriteString("\n")
	b.WriteString(row("Storage Nodes", fmt.Sprintf("%d", stats.StorageNodes)))
	b.WriteString("\n")
	b.WriteString(row("Active Contracts", fmt.Sprintf("%d", stats.ActiveContracts)))
	b.WriteString("\n")
	b.WriteString(row("Avg Replication", fmt.Sprintf("%.1f", stats.AvgReplication)))
	b.WriteString("\n")
	b.WriteString(row("Files Assembled", fmt.Sprintf("%d (%s, avg %.3fs)",
		stats.Assembly.FilesAssembled,
		utils.FormatDataSize(int64(stats.Assembly.BytesAssembled)),
		stats.Assembly.AvgAssemblySecs)))
	return panelStyle.Render(b.String())
}

func renderEarnings(reports []types.NodeEarningsReport) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(bgLightColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return rowStyle
		}).
		Headers("NODE", "TIER", "EARNED", "RELIABILITY", "RESPONSE", "PER GB")

	for _, r := range reports {
		t.Row(
			string(r.NodeID),
			tierBadge(r.Tier),
			fmt.Sprintf("%d", r.TotalEarnings),
			fmt.Sprintf("%.2f", r.ReliabilityScore),
			r.AvgResponse.String(),
			fmt.Sprintf("%.2f", r.EarningsPerGB),
		)
	}

	return titleStyle.Render("💰 Node Earnings") + "\n" + t.Render()
}

func tierBadge(tier types.PerformanceTier) string {
	switch tier {
	case types.TierPremium:
		return accentValueStyle.Render("premium")
	case types.TierStandard:
		return valueStyle.Render("standard")
	default:
		return warningValueStyle.Render("basic")
	}
}

func renderRewards(stats types.RewardsDistributionStats, lastRun uint64) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("🏆 Rewards Distribution"))
	b.WriteString("\n")
	b.WriteString(row("Last Run", fmt.Sprintf("%d", lastRun)))
	b.WriteString("\n")
	b.WriteString(row("Total Distributed", fmt.Sprintf("%d", stats.TotalDistributed)))
	b.WriteString("\n")
	b.WriteString(row("Completed Contracts", fmt.Sprintf("%d", stats.CompletedContracts)))
	b.WriteString("\n")
	b.WriteString(row("Active Providers", fmt.Sprintf("%d", stats.ActiveProviders)))
	b.WriteString("\n")
	b.WriteString(row("Capacity", fmt.Sprintf("%.1f GB", stats.TotalCapacityGB)))
	b.WriteString("\n")
	b.WriteString(row("Avg Reliability", fmt.Sprintf("%.2f", stats.AvgReliability)))
	b.WriteString("\n")
	b.WriteString(row("By Tier", fmt.Sprintf("premium %d / standard %d / basic %d",
		stats.PremiumTierEarnings, stats.StandardTierEarnings, stats.BasicTierEarnings)))
	return panelStyle.Render(b.String())
}
