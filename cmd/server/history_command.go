package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Qaquka/aatm-qaquka/internal/config"
	"github.com/Qaquka/aatm-qaquka/internal/domain"
	"github.com/Qaquka/aatm-qaquka/internal/service"
)

func newHistoryCommand(configFlag *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent packaging and push operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			repo, closeRepo, err := openHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			entries, err := service.NewHistoryService(repo).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history entries")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

func renderHistory(entries []domain.HistoryEntry) string {
	headers := []string{"#", "When", "Source", "Type", "Target", "Torrent", "NFO", "La-Cale", "Seedbox", "Error"}
	aligns := []columnAlignment{alignRight}
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			filepath.Base(e.SourcePath),
			e.MediaType,
			e.Target,
			yesNo(e.TorrentCreated),
			yesNo(e.NFOCreated),
			string(e.LacaleUpload),
			string(e.QbitPush),
			e.Error,
		})
	}
	return renderTable(headers, rows, aligns)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
